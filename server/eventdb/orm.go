package eventdb

import (
	"github.com/cyclopcam/aquatrack/pkg/nn"
	"github.com/cyclopcam/aquatrack/server/monitor"
	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Event is one tracked detection, as stored in the DB.
// The box is in display space.
type Event struct {
	BaseModel
	Time             dbh.IntTime `json:"time"`
	Frame            int64       `json:"frame"`
	Class            int         `json:"class"`
	ClassName        string      `json:"className"`
	Confidence       float32     `json:"confidence"`
	X1               float32     `json:"x1"`
	Y1               float32     `json:"y1"`
	X2               float32     `json:"x2"`
	Y2               float32     `json:"y2"`
	TrackID          int64       `json:"trackId"`
	RecentTrajectory []nn.Point  `json:"recentTrajectory" gorm:"serializer:json"`
}

func (Event) TableName() string {
	return "detection_event"
}

func eventFromDetection(d *monitor.DetectionEvent) *Event {
	return &Event{
		Time:             dbh.MakeIntTime(d.Time),
		Frame:            d.Frame,
		Class:            d.Class,
		ClassName:        d.ClassName,
		Confidence:       d.Confidence,
		X1:               d.Box.X1,
		Y1:               d.Box.Y1,
		X2:               d.Box.X2,
		Y2:               d.Box.Y2,
		TrackID:          int64(d.TrackID),
		RecentTrajectory: d.RecentTrajectory,
	}
}

// Detection converts the stored event back into the shape that the monitor emits
func (e *Event) Detection() *monitor.DetectionEvent {
	return &monitor.DetectionEvent{
		Frame:            e.Frame,
		Time:             e.Time.Get(),
		Class:            e.Class,
		ClassName:        e.ClassName,
		Confidence:       e.Confidence,
		Box:              nn.Box{X1: e.X1, Y1: e.Y1, X2: e.X2, Y2: e.Y2},
		TrackID:          nn.TrackID(e.TrackID),
		RecentTrajectory: e.RecentTrajectory,
	}
}

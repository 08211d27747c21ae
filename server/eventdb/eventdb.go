package eventdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/aquatrack/server/monitor"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// How often we delete events beyond MaxEvents
const purgeInterval = 10 * time.Second

// EventDB is a persistent log of detection events.
// Events arrive from a monitor watcher channel, and are written by a single goroutine.
type EventDB struct {
	log       logs.Log
	db        *gorm.DB
	maxEvents int
	lastPurge time.Time

	monitor           *monitor.Monitor
	watcher           chan *monitor.FrameResult
	shutdown          chan bool // Closed when it's time to shutdown
	writeThreadClosed chan bool // The write thread closes this channel when it exits
}

// Open or create an event DB.
// If maxEvents is greater than zero, the oldest events are deleted once the count exceeds maxEvents.
func Open(log logs.Log, dbPath string, maxEvents int) (*EventDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0770); err != nil {
		return nil, fmt.Errorf("Failed to create event DB directory for '%v': %w", dbPath, err)
	}
	log.Infof("Opening event DB at '%v'", dbPath)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbPath), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open event database %v: %w", dbPath, err)
	}
	return &EventDB{
		log:       log,
		db:        db,
		maxEvents: maxEvents,
	}, nil
}

// Start writing every event that the monitor emits
func (e *EventDB) Attach(m *monitor.Monitor) {
	e.monitor = m
	e.watcher = m.AddWatcher()
	e.shutdown = make(chan bool)
	e.writeThreadClosed = make(chan bool)
	go e.writeThread()
}

func (e *EventDB) Close() {
	if e.monitor != nil {
		e.monitor.RemoveWatcher(e.watcher)
		close(e.shutdown)
		e.log.Infof("Waiting for event write thread to exit")
		<-e.writeThreadClosed
		e.monitor = nil
	}
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (e *EventDB) writeThread() {
	defer close(e.writeThreadClosed)
	for {
		select {
		case <-e.shutdown:
			// Drain whatever is already queued, so that the last few frames are not lost
			for {
				select {
				case result := <-e.watcher:
					e.writeResult(result)
				default:
					return
				}
			}
		case result := <-e.watcher:
			e.writeResult(result)
		}
	}
}

func (e *EventDB) writeResult(result *monitor.FrameResult) {
	if len(result.Events) == 0 {
		return
	}
	if err := e.Write(result.Events); err != nil {
		e.log.Errorf("Failed to write %v events of frame %v: %v", len(result.Events), result.Index, err)
	}
	if time.Since(e.lastPurge) > purgeInterval {
		if err := e.Purge(); err != nil {
			e.log.Errorf("Failed to purge old events: %v", err)
		}
		e.lastPurge = time.Now()
	}
}

// Write a batch of events in a single transaction
func (e *EventDB) Write(events []*monitor.DetectionEvent) error {
	rows := make([]*Event, 0, len(events))
	for _, ev := range events {
		rows = append(rows, eventFromDetection(ev))
	}
	return e.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(rows).Error
	})
}

// Delete the oldest events, so that no more than maxEvents remain
func (e *EventDB) Purge() error {
	if e.maxEvents <= 0 {
		return nil
	}
	res := e.db.Exec("DELETE FROM detection_event WHERE id <= (SELECT id FROM detection_event ORDER BY id DESC LIMIT 1 OFFSET ?)", e.maxEvents)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 0 {
		e.log.Infof("Purged %v old events", res.RowsAffected)
	}
	return nil
}

// Return the most recent events, newest first
func (e *EventDB) Recent(limit int) ([]Event, error) {
	events := []Event{}
	if err := e.db.Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Return the most recent events of one track, newest first
func (e *EventDB) RecentForTrack(trackID int64, limit int) ([]Event, error) {
	events := []Event{}
	if err := e.db.Where("track_id = ?", trackID).Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (e *EventDB) Count() (int64, error) {
	var n int64
	err := e.db.Model(&Event{}).Count(&n).Error
	return n, err
}

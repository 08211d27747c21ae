package eventdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE detection_event(
			id INTEGER PRIMARY KEY,
			time INT NOT NULL,
			frame INT NOT NULL,
			class INT NOT NULL,
			class_name TEXT NOT NULL,
			confidence REAL NOT NULL,
			x1 REAL NOT NULL,
			y1 REAL NOT NULL,
			x2 REAL NOT NULL,
			y2 REAL NOT NULL,
			track_id INT NOT NULL,
			recent_trajectory TEXT
		);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE INDEX idx_detection_event_track_id ON detection_event(track_id);
		CREATE INDEX idx_detection_event_time ON detection_event(time);
	`))

	return migs
}

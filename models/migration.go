package models

import (
	"log"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&CachedWorkOrderList{}, &CachedWorkOrderDetail{},
		&PendingAction{}, &DeadLetter{},
		&SyncRun{},
		&Session{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

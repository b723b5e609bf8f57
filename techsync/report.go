package techsync

import (
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// SyncReportHandler exports the reconciliation history and the dead-letter
// table as a spreadsheet for back-office review.
func (a *API) SyncReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		runs, err := models.ListSyncRuns(ctx, 100)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		letters, err := models.ListDeadLetters(ctx, 200)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		runSheet := "SyncRuns"
		f.SetSheetName("Sheet1", runSheet)

		f.SetCellValue(runSheet, "A1", "Id")
		f.SetCellValue(runSheet, "B1", "Status")
		f.SetCellValue(runSheet, "C1", "TriggeredBy")
		f.SetCellValue(runSheet, "D1", "Synced")
		f.SetCellValue(runSheet, "E1", "Failed")
		f.SetCellValue(runSheet, "F1", "Skipped")
		f.SetCellValue(runSheet, "G1", "StartedAt")
		f.SetCellValue(runSheet, "H1", "DurationMs")

		for i, r := range runs {
			row := fmt.Sprint(i + 2)
			f.SetCellValue(runSheet, "A"+row, r.ID)
			f.SetCellValue(runSheet, "B"+row, r.Status)
			f.SetCellValue(runSheet, "C"+row, r.TriggeredBy)
			f.SetCellValue(runSheet, "D"+row, r.Synced)
			f.SetCellValue(runSheet, "E"+row, r.Failed)
			f.SetCellValue(runSheet, "F"+row, r.Skipped)
			if r.StartedAt != nil {
				f.SetCellValue(runSheet, "G"+row, r.StartedAt.UTC().Format(time.RFC3339))
			}
			f.SetCellValue(runSheet, "H"+row, r.DurationMs)
		}

		letterSheet := "DeadLetters"
		if _, err := f.NewSheet(letterSheet); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f.SetCellValue(letterSheet, "A1", "ActionId")
		f.SetCellValue(letterSheet, "B1", "Kind")
		f.SetCellValue(letterSheet, "C1", "WorkOrderId")
		f.SetCellValue(letterSheet, "D1", "Reason")
		f.SetCellValue(letterSheet, "E1", "RetryCount")
		f.SetCellValue(letterSheet, "F1", "LastError")
		f.SetCellValue(letterSheet, "G1", "EnqueuedAt")

		for i, l := range letters {
			row := fmt.Sprint(i + 2)
			f.SetCellValue(letterSheet, "A"+row, l.ActionId)
			f.SetCellValue(letterSheet, "B"+row, l.Kind)
			f.SetCellValue(letterSheet, "C"+row, l.WorkOrderId)
			f.SetCellValue(letterSheet, "D"+row, l.Reason)
			f.SetCellValue(letterSheet, "E"+row, l.RetryCount)
			f.SetCellValue(letterSheet, "F"+row, l.LastError)
			f.SetCellValue(letterSheet, "G"+row, l.EnqueuedAt.UTC().Format(time.RFC3339))
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=sync-report.xlsx")
		if err := f.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write report"})
		}
	}
}

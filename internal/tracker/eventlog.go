package tracker

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/radgate/radgate/internal/types"
)

const eventCSVHeader = "timestamp,transfer_id,event,study_uid,message"

// appendEvent writes one line to the route's daily event CSV. The file is
// strictly append-only; the header is written only when the file is created.
// Event log failures are logged and never fail the transfer operation.
func (t *Tracker) appendEvent(rec *types.TransferRecord, event, message string) {
	dir := filepath.Join(t.baseDir, rec.AETitle, "logs")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.Printf("tracker: create log dir: %v", err)
		return
	}
	path := filepath.Join(dir, "transfers_"+time.Now().Format("2006-01-02")+".csv")

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		log.Printf("tracker: open event log: %v", err)
		return
	}
	defer f.Close()

	if writeHeader {
		if _, err := fmt.Fprintln(f, eventCSVHeader); err != nil {
			log.Printf("tracker: write event header: %v", err)
			return
		}
	}

	line := fmt.Sprintf("%s,%s,%s,%s,%s",
		time.Now().Format("2006-01-02T15:04:05"),
		rec.TransferID, event, rec.StudyUID, csvSafe(message))
	if _, err := fmt.Fprintln(f, line); err != nil {
		log.Printf("tracker: write event: %v", err)
	}
}

// csvSafe keeps the free-text message on one line and out of the comma
// grammar.
func csvSafe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, ",", ";")
	return s
}

package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"pmcautomation/internal/components/telemetry"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// MessageOutput receives formatted request/response pairs.
type MessageOutput interface {
	Write(id string, contents string)
}

// FilesystemOutput writes each message into its own file in a directory,
// usually the "http" folder of a batch folder.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Directory() string {
	return o.directory
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id+".txt"), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

// DumpMessages writes every response (with its request) to `output` while
// debug logging is enabled. Messages are named after their request id.
func DumpMessages(client *resty.Client, output MessageOutput) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		ctx := res.Request.Context()
		if !slog.Default().Enabled(ctx, slog.LevelDebug) {
			return nil
		}
		id := telemetry.RequestID(ctx)
		output.Write(strconv.FormatUint(id, 10), formatHttpMessage(res))
		return nil
	})
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shivanshkc/streamlat/pkg/bench"
)

var (
	recordStream      string
	recordReaderID    int
	recordBatchSize   int
	recordSnapshotDir string
)

// recordCmd is the reader process spawned by bench. It consumes the stream to
// its end and leaves the arrival record in the snapshot directory.
var recordCmd = &cobra.Command{
	Use:    "record",
	Short:  "Consume a stream and record read arrival times.",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if message := validateRecordFlags(); message != "" {
			fmt.Println(message)
			os.Exit(1)
		}

		dial, err := dialer(cfg.Transport)
		if err != nil {
			return err
		}

		recorder := &bench.Recorder{
			Dial:        dial,
			StreamName:  recordStream,
			ReaderID:    recordReaderID,
			BatchSize:   recordBatchSize,
			SnapshotDir: recordSnapshotDir,
			Logger:      logger,
		}

		// Read failures are logged by the recorder and do not fail the process,
		// since the snapshot still holds everything read before them.
		_, err = recorder.Run(cmd.Context())
		return err
	},
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVar(&recordStream, "stream", "", "Name of the stream to consume.")
	recordCmd.Flags().IntVar(&recordReaderID, "reader-id", 0, "Id of this reader within the run.")
	recordCmd.Flags().IntVar(&recordBatchSize, "batch-size", 1, "Capacity of the read buffer.")
	recordCmd.Flags().StringVar(&recordSnapshotDir, "snapshot-dir", "", "Directory for the snapshot file.")
}

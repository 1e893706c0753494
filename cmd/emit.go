package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-webhooks/internal/notify"
)

type emitOptions struct {
	file  string
	topic string
	local bool
}

func newEmitCmd() *cobra.Command {
	opts := &emitOptions{}
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publishes a job event, or delivers it in-process with --local",
		Long: `Reads one JSON job event from --file (or stdin) and publishes it to the
Pub/Sub topic the serve command's subscription reads from. With --local the
event is delivered directly by this process and the outcome is printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmit(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "-", "path to a JSON job event, - for stdin")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Pub/Sub topic (defaults to pubsub.topic_id)")
	cmd.Flags().BoolVar(&opts.local, "local", false, "deliver in-process instead of publishing")
	return cmd
}

func runEmit(cmd *cobra.Command, opts *emitOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ev, err := readEvent(cmd, opts.file)
	if err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if opts.local {
		outcome, err := appInstance.GetNotifier().Handle(cmd.Context(), ev)
		if err != nil {
			return fmt.Errorf("deliver event: %w", err)
		}
		if err := appInstance.GetFactory().Wait(cmd.Context()); err != nil {
			return err
		}
		return json.NewEncoder(out).Encode(outcome)
	}

	topic := opts.topic
	if topic == "" {
		topic = appInstance.GetConfig().PubSub.TopicID
	}
	pub, err := appInstance.NewPublisher(topic)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer pub.Stop()

	id, err := pub.Publish(cmd.Context(), ev)
	if err != nil {
		return err
	}
	appInstance.GetLogger().Info("job event published",
		zap.String("topic", topic),
		zap.String("message_id", id),
		zap.String("job_id", ev.JobID),
		zap.String("type", string(ev.Type)),
	)
	_, err = fmt.Fprintln(out, id)
	return err
}

func readEvent(cmd *cobra.Command, path string) (notify.JobEvent, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return notify.JobEvent{}, fmt.Errorf("open event file: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only
		r = f
	}
	var ev notify.JobEvent
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return notify.JobEvent{}, fmt.Errorf("decode job event: %w", err)
	}
	return ev, nil
}

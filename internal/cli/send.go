package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether"
	"github.com/RandomStudio/tether/internal/codec"
)

const defaultSendPlug = "testMessages"

type sendOptions struct {
	plugName  string
	plugRole  string
	plugID    string
	topic     string
	message   string
	dummyData bool
	qos       int
	retain    bool
}

// dummyData is the payload sent with --dummyData.
type dummyData struct {
	ID         int     `json:"id"`
	AFloat     float32 `json:"a_float"`
	AnIntArray []int   `json:"an_int_array"`
	AString    string  `json:"a_string"`
}

func newSendCmd(a *app) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a single message on an output plug",
		Long: `Publish one message and exit.

The message is given as JSON and sent as MessagePack. Without --message an
empty payload is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.send(ctx, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.plugName, "plug.name", defaultSendPlug, "output plug name")
	f.StringVar(&opts.plugRole, "plug.role", "", "override the agent role in the topic")
	f.StringVar(&opts.plugID, "plug.id", "", "override the agent id in the topic")
	f.StringVar(&opts.topic, "topic", "", "publish on this exact topic, ignoring other plug options")
	f.StringVar(&opts.message, "message", "", "message as JSON, converted to MessagePack")
	f.BoolVar(&opts.dummyData, "dummyData", false, "send generated test data instead of --message")
	f.IntVar(&opts.qos, "qos", 1, "QoS level (0, 1 or 2)")
	f.BoolVar(&opts.retain, "retain", false, "ask the broker to retain the message")

	return cmd
}

func (o *sendOptions) payload() ([]byte, error) {
	switch {
	case o.dummyData:
		return codec.Encode(dummyData{
			ID:         0,
			AFloat:     42.0,
			AnIntArray: []int{1, 2, 3, 4},
			AString:    "hello world",
		})
	case o.message != "":
		return codec.JSONToMsgpack([]byte(o.message))
	default:
		return nil, nil
	}
}

func (o *sendOptions) plugOptions() ([]tether.PlugOption, error) {
	if o.qos < 0 || o.qos > 2 {
		return nil, fmt.Errorf("%w: %d", tether.ErrInvalidQoS, o.qos)
	}
	opts := []tether.PlugOption{
		tether.WithQoS(byte(o.qos)),
		tether.WithRetain(o.retain),
	}
	if o.plugRole != "" {
		opts = append(opts, tether.WithRole(o.plugRole))
	}
	if o.plugID != "" {
		opts = append(opts, tether.WithID(o.plugID))
	}
	if o.topic != "" {
		opts = append(opts, tether.WithTopic(o.topic))
	}
	return opts, nil
}

func (a *app) send(ctx context.Context, opts *sendOptions) error {
	payload, err := opts.payload()
	if err != nil {
		return err
	}
	plugOpts, err := opts.plugOptions()
	if err != nil {
		return err
	}

	agent, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer agent.Disconnect()

	out, err := agent.CreateOutput(opts.plugName, plugOpts...)
	if err != nil {
		return err
	}

	if len(payload) == 0 {
		a.log.Warn("sending empty message", "topic", out.Topic())
	}
	if err := out.Publish(payload); err != nil {
		return fmt.Errorf("publishing on %q: %w", out.Topic(), err)
	}
	a.log.Info("sent message", "topic", out.Topic(), "bytes", len(payload))
	return nil
}

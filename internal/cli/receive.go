package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether"
	"github.com/RandomStudio/tether/internal/codec"
)

const receivePlugName = "receive"

type receiveOptions struct {
	plugRole string
	plugID   string
	plugName string
	topic    string
}

// filter returns the subscription filter. With no options at all every
// topic is received.
func (o *receiveOptions) filter() string {
	if o.topic != "" {
		return o.topic
	}
	if o.plugRole == "" && o.plugID == "" && o.plugName == "" {
		return "#"
	}
	part := func(s string) string {
		if s == "" {
			return "+"
		}
		return s
	}
	return part(o.plugRole) + "/" + part(o.plugID) + "/" + part(o.plugName)
}

func newReceiveCmd(a *app) *cobra.Command {
	opts := &receiveOptions{}

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Print messages as they arrive",
		Long: `Subscribe and print every message until interrupted.

MessagePack payloads are shown as JSON; anything else is shown as text or,
failing that, as raw bytes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.receive(ctx, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.plugRole, "plug.role", "", "only this agent role (default any)")
	f.StringVar(&opts.plugID, "plug.id", "", "only this agent id (default any)")
	f.StringVar(&opts.plugName, "plug.name", "", "only this plug name (default any)")
	f.StringVar(&opts.topic, "topic", "", "subscribe with this exact filter, ignoring the plug options")

	return cmd
}

func (a *app) receive(ctx context.Context, opts *receiveOptions) error {
	filter := opts.filter()
	if err := tether.ValidateFilter(filter); err != nil {
		return err
	}

	agent, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer agent.Disconnect()

	stop, err := a.supervise(ctx, agent)
	if err != nil {
		return err
	}
	defer stop()

	var mu sync.Mutex
	_, err = agent.CreateInput(receivePlugName, func(payload []byte, topic string) {
		text, kind := codec.Render(payload)
		if kind == codec.KindBinary {
			a.log.Warn("payload is neither MessagePack nor text", "topic", topic, "bytes", len(payload))
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(a.out, "%s %s\n", topic, text)
	}, tether.WithTopic(filter))
	if err != nil {
		return err
	}
	a.log.Info("receiving", "filter", filter)

	<-ctx.Done()
	return nil
}

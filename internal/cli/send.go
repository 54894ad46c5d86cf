package cli

import (
	"encoding/json"
	"fmt"

	"dario.cat/mergo"
	"github.com/spf13/cobra"

	"github.com/shineum/enjinmel-relay/internal/config"
	"github.com/shineum/enjinmel-relay/internal/email"
)

type sendFlags struct {
	to          []string
	subject     string
	body        string
	headers     []string
	attachments []string

	// Per-invocation settings overrides.
	from      string
	fromName  string
	forceFrom bool
	campaign  string
	template  string

	dryRun bool
}

func newSendCommand(opts *options) *cobra.Command {
	f := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message through the EnjinMel API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			override := config.SettingsConfig{
				FromEmail:    f.from,
				FromName:     f.fromName,
				ForceFrom:    f.forceFrom,
				CampaignName: f.campaign,
				TemplateID:   f.template,
			}
			if err := mergo.Merge(&opts.cfg.Settings, override, mergo.WithOverride); err != nil {
				return fmt.Errorf("failed to apply overrides: %w", err)
			}

			if f.dryRun {
				opts.cfg.EnjinMel.DryRun = true
			}

			r, err := newRelay(ctx, opts.cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer r.Close()

			req := &email.Request{
				To:      f.to,
				Subject: f.subject,
				Message: f.body,
				Headers: f.headers,
			}
			for _, path := range f.attachments {
				req.Attachments = append(req.Attachments, email.Attachment{Path: path})
			}

			outcome := r.interceptor.Intercept(ctx, nil, req)
			if outcome.Err != nil {
				return outcome.Err
			}

			out, err := json.MarshalIndent(outcome.Response, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&f.to, "to", nil, "recipient address (repeatable, comma-separated lists allowed)")
	flags.StringVar(&f.subject, "subject", "", "message subject")
	flags.StringVar(&f.body, "body", "", "message body")
	flags.StringArrayVar(&f.headers, "header", nil, `extra header line, e.g. "Cc: a@example.com" (repeatable)`)
	flags.StringArrayVar(&f.attachments, "attach", nil, "file to attach (repeatable)")
	flags.StringVar(&f.from, "from", "", "sender email override")
	flags.StringVar(&f.fromName, "from-name", "", "sender name override")
	flags.BoolVar(&f.forceFrom, "force-from", false, "always use the configured sender")
	flags.StringVar(&f.campaign, "campaign", "", "campaign name override")
	flags.StringVar(&f.template, "template", "", "template id override")
	flags.BoolVar(&f.dryRun, "dry-run", false, "print the payload instead of calling the API")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

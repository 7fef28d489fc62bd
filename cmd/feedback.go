package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/model"
)

var (
	feedbackDocument string
	feedbackSession  string
	feedbackType     string
	feedbackDetail   string
	feedbackAdjust   []string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Submit reviewer feedback for an escalated document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if (feedbackDocument == "") == (feedbackSession == "") {
			return eris.New("exactly one of --document or --session is required")
		}

		adjustments, err := parseAdjustments(feedbackAdjust)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fb := model.Feedback{
			Type:                 model.FeedbackType(strings.ToUpper(feedbackType)),
			Detail:               feedbackDetail,
			ThresholdAdjustments: adjustments,
		}

		var item model.HitlQueueItem
		if feedbackDocument != "" {
			item, err = env.Orchestrator.SubmitDocumentFeedback(ctx, feedbackDocument, fb)
		} else {
			item, err = env.Orchestrator.SubmitFeedback(ctx, feedbackSession, fb)
		}
		if err != nil {
			return eris.Wrap(err, "submit feedback")
		}

		zap.L().Info("feedback recorded",
			zap.String("session_id", item.SessionID),
			zap.String("document_id", item.DocumentID),
			zap.String("feedback_type", string(fb.Type)),
			zap.Int("adjustments", len(adjustments)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	},
}

// parseAdjustments turns repeated key=value flags into a threshold override
// map.
func parseAdjustments(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, eris.Errorf("invalid adjustment %q, expected key=value", pair)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid adjustment value %q", raw)
		}
		out[key] = value
	}
	return out, nil
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackDocument, "document", "", "document ID with a pending review")
	feedbackCmd.Flags().StringVar(&feedbackSession, "session", "", "session ID of the queue item")
	feedbackCmd.Flags().StringVar(&feedbackType, "type", "", "verdict: CORRECT, INCORRECT, or PARTIAL (required)")
	feedbackCmd.Flags().StringVar(&feedbackDetail, "detail", "", "free-form reviewer notes")
	feedbackCmd.Flags().StringArrayVar(&feedbackAdjust, "adjust", nil, "threshold adjustment key=value (repeatable)")
	_ = feedbackCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(feedbackCmd)
}

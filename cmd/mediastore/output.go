package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"mediastore/internal/format"
	"mediastore/internal/media"
	"mediastore/internal/models"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func writeJSON(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeLines(lines []string) error {
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func blobLines(blob *models.Blob, indent string) []string {
	if blob == nil {
		return nil
	}
	lines := []string{
		fmt.Sprintf("%sblob_id: %s", indent, blob.ID),
		fmt.Sprintf("%skind: %s", indent, blob.Kind),
		fmt.Sprintf("%slocation: %s", indent, blob.Location),
		fmt.Sprintf("%ssize_bytes: %d", indent, blob.SizeBytes),
		fmt.Sprintf("%ssha256: %s", indent, blob.SHA256),
	}
	if blob.Extension != "" {
		lines = append(lines, fmt.Sprintf("%sextension: %s", indent, blob.Extension))
	}
	if len(blob.Variants) > 0 {
		lines = append(lines, fmt.Sprintf("%svariants: %s", indent, strings.Join(blob.Variants, ", ")))
	}
	return lines
}

func writeDocumentDetail(doc *models.Document) error {
	lines := []string{
		fmt.Sprintf("id: %s", doc.ID),
		fmt.Sprintf("name: %s", doc.Name),
		fmt.Sprintf("privacy_state: %s", doc.PrivacyState),
		fmt.Sprintf("creator: %s", doc.Creator),
		fmt.Sprintf("created_at: %s", formatTime(doc.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(doc.UpdatedAt)),
	}
	if doc.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", doc.Description))
	}
	lines = append(lines, blobLines(doc.Blob, "")...)
	return writeLines(lines)
}

func writeSurveyDetail(sr *models.SurveyResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", sr.ID),
		fmt.Sprintf("username: %s", sr.Username),
		fmt.Sprintf("campaign_urn: %s", sr.CampaignURN),
		fmt.Sprintf("survey_id: %s", sr.SurveyID),
		fmt.Sprintf("privacy_state: %s", sr.PrivacyState),
		fmt.Sprintf("epoch_millis: %d", sr.EpochMillis),
		fmt.Sprintf("created_at: %s", formatTime(sr.CreatedAt)),
	}
	if sr.Client != "" {
		lines = append(lines, fmt.Sprintf("client: %s", sr.Client))
	}
	if sr.Timezone != "" {
		lines = append(lines, fmt.Sprintf("timezone: %s", sr.Timezone))
	}
	if len(sr.Prompts) > 0 {
		lines = append(lines, "prompts:")
		for _, p := range sr.Prompts {
			line := fmt.Sprintf("  - %s [%s]", p.PromptID, p.PromptType)
			if p.BlobID != "" {
				line += " blob=" + p.BlobID
			} else if p.Response != "" {
				line += " " + p.Response
			}
			lines = append(lines, line)
		}
	}
	return writeLines(lines)
}

func writeBatchResult(res media.BatchResult) error {
	for _, o := range res.Outcomes {
		line := fmt.Sprintf("%s %s", o.Kind, o.ID)
		if o.ExistingID != "" && o.ExistingID != o.ID {
			line += " (conflicts with " + o.ExistingID + ")"
		}
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	inserted := len(res.Outcomes) - len(res.Duplicates)
	return writePlain("inserted: %d, duplicates: %d\n", inserted, len(res.Duplicates))
}

func writeSweepResult(res media.SweepResult) error {
	for _, o := range res.Orphans {
		if err := writePlain("  %s %s (%d bytes)\n", o.Kind, o.Location, o.Size); err != nil {
			return err
		}
	}
	mode := "dry run"
	if !res.DryRun {
		mode = "applied"
	}
	return writePlain("%s: scanned=%d orphans=%d deleted=%d failed=%d reclaimed_bytes=%d\n",
		mode, res.Scanned, len(res.Orphans), res.DeletedCount, res.FailedCount, res.ReclaimedBytes)
}

func writeCheckResult(res media.CheckResult) error {
	for _, m := range res.Missing {
		if err := writePlain("missing %s %s %s\n", m.Kind, m.BlobID, m.Location); err != nil {
			return err
		}
	}
	return writePlain("checked: %d, missing: %d\n", res.Checked, len(res.Missing))
}

func writeTreeStats(stats []media.TreeStats) error {
	for _, st := range stats {
		line := fmt.Sprintf("%s: files=%d bytes=%d leaves=%d", st.Kind, st.Files, st.Bytes, st.Leaves)
		if st.FullestLeaf != "" {
			line += fmt.Sprintf(" fullest=%s (%d)", st.FullestLeaf, st.FullestCount)
		}
		if err := writePlain("%s root=%s\n", line, st.Root); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

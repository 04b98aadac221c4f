// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/marquee/internal/recommend/replay"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// writeOutput encodes v as JSON or YAML, or calls text for the text format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatText, "":
		return text(w)
	default:
		return fmt.Errorf("unknown format %q: want text, json or yaml", format)
	}
}

func reportText(r *replay.Report) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "user %d, %s to %s, serving size %d\n",
			r.UserID, r.Since.Format("2006-01-02 15:04"), r.AsOf.Format("2006-01-02 15:04"), r.ServingSize)
		fmt.Fprintf(w, "params: %s\n\n", describeParams(r))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SET\tEXPOSURES\tPOSITIVE\tNEGATIVE\tACCEPTANCE\tAVG SCORE\tHIGH CONSENSUS")
		for _, row := range []struct {
			name string
			m    replay.Metrics
		}{
			{"original", r.Original},
			{"baseline", r.Baseline},
			{"simulated", r.Simulated},
		} {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.3f\t%.3f\t%.3f\n", row.name,
				row.m.Exposures, row.m.Positive, row.m.Negative,
				row.m.AcceptanceRate, row.m.AverageScore, row.m.HighConsensusFraction)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(w, "\nacceptance delta: %+.3f (vs full set %+.3f)\n", r.AcceptanceDelta, r.FullSetDelta)
		if r.Approximate {
			fmt.Fprintln(w, "scores are approximate; treat deltas as directional")
		}
		return nil
	}
}

func describeParams(r *replay.Report) string {
	var parts []string
	if r.Params.MMRLambda != nil {
		parts = append(parts, fmt.Sprintf("lambda=%.2f", *r.Params.MMRLambda))
	}
	names := make([]string, 0, len(r.Params.SourceWeights))
	for name := range r.Params.SourceWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, r.Params.SourceWeights[name]))
	}
	if len(parts) == 0 {
		return "unchanged"
	}
	return strings.Join(parts, " ")
}

func summaryText(s *Summary) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "log holds %d exposures and %d feedback rows; outcomes since %s\n\n",
			s.Rows["suggestion_exposures"], s.Rows["feedback"], s.Since.Format("2006-01-02 15:04"))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LEVEL\tEXPOSURES\tPOSITIVE\tNEGATIVE\tACCEPTANCE")
		for _, l := range s.Levels {
			rate := 0.0
			if l.Exposures > 0 {
				rate = float64(l.Positive) / float64(l.Exposures)
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.3f\n", l.Level, l.Exposures, l.Positive, l.Negative, rate)
		}
		return tw.Flush()
	}
}

// Copyright (c) 2019 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/contiv/orchagent/plugins/controller/api"
)

const (
	bannerWidth = 130
	bannerText  = bannerWidth - 6 // "*   " + text + " *"
)

// banner builds boxed event summaries printed when PrintEvents is enabled.
type banner struct {
	strings.Builder
}

func (b *banner) border(char string) {
	b.WriteString(strings.Repeat(char, bannerWidth) + "\n")
}

// line adds one line of text with an optional right-aligned suffix,
// indented by the given number of spaces.
func (b *banner) line(indent int, text, suffix string) {
	width := bannerText - indent
	if suffix != "" {
		width -= len(suffix) + 1
		text = fmt.Sprintf("%-*s %s", width, text, suffix)
	} else {
		text = fmt.Sprintf("%-*s", width, text)
	}
	b.WriteString("*   " + strings.Repeat(" ", indent) + text + " *\n")
}

// printNewEvent prints a banner into stdout about a newly received event.
func (c *Controller) printNewEvent(eventRec *EventRecord, handlers []api.EventHandler) {
	if !c.config.PrintEvents {
		return
	}
	fmt.Print(formatNewEvent(eventRec, handlers))
}

// printFinalizedEvent prints a banner into stdout about a finalized event.
func (c *Controller) printFinalizedEvent(eventRec *EventRecord) {
	if !c.config.PrintEvents {
		return
	}
	fmt.Print(formatFinalizedEvent(eventRec))
}

func formatNewEvent(eventRec *EventRecord, handlers []api.EventHandler) string {
	var b banner
	b.border(">")

	headline := "NEW EVENT"
	if eventRec.IsFollowUp {
		headline += " (follow-up to " + eventSeqNumToStr(eventRec.FollowUpTo) + ")"
	}
	descLines := splitLongLines(strings.Split(eventRec.Description, "\n"), 110, 6)
	b.line(0, headline+": "+descLines[0], eventSeqNumToStr(eventRec.SeqNum))
	for _, descLine := range descLines[1:] {
		b.line(11, descLine, "")
	}
	if len(handlers) > 0 {
		b.line(0, "EVENT HANDLERS: "+evHandlersToStr(handlers), "")
	}

	b.border(">")
	return b.String()
}

func formatFinalizedEvent(eventRec *EventRecord) string {
	var (
		b         banner
		handledBy []string
		failed    []*EventHandlingRecord
	)
	seen := make(map[string]struct{})
	for _, handlerRec := range eventRec.Handlers {
		if handlerRec.Error != nil {
			failed = append(failed, handlerRec)
		}
		if _, duplicate := seen[handlerRec.Handler]; !duplicate {
			seen[handlerRec.Handler] = struct{}{}
			handledBy = append(handledBy, handlerRec.Handler)
		}
	}

	b.border("<")
	b.line(0, "FINALIZED EVENT: "+strings.Split(eventRec.Description, "\n")[0],
		eventSeqNumToStr(eventRec.SeqNum))

	took := "took " + eventRec.ProcessingEnd.Sub(eventRec.ProcessingStart).Round(time.Millisecond).String()
	if len(handledBy) > 0 {
		b.line(0, "HANDLED BY: "+strings.Join(handledBy, ", "), took)
	} else {
		b.line(0, "NOTHING TO DO", took)
	}

	if len(eventRec.Intents) > 0 {
		b.line(0, "INTENTS:", "")
		for _, intentRec := range eventRec.Intents {
			desc := fmt.Sprintf("%s %s -> %s", intentRec.Op, intentRec.Intent, intentRec.NewState)
			if intentRec.Attempt > 1 {
				desc += fmt.Sprintf(" (attempt #%d)", intentRec.Attempt)
			}
			b.line(4, "* "+desc, "")
		}
	}

	if len(failed) > 0 {
		b.line(0, "ERRORS:", "")
		for _, handlerRec := range failed {
			desc := handlerRec.Handler
			if handlerRec.Intent != "" {
				desc += " (" + handlerRec.Intent + ")"
			}
			b.line(4, "* "+desc+": "+handlerRec.ErrorStr, "")
		}
	}

	if eventRec.TxnError != nil {
		b.line(0, "TRANSACTION ERROR: "+eventRec.TxnError.Error(), "")
	}

	b.border("<")
	return b.String()
}

// filterHandlersForEvent returns only those handlers that are interested in the event.
func filterHandlersForEvent(event api.Event, handlers []api.EventHandler) (filtered []api.EventHandler) {
	for _, handler := range handlers {
		if handler.HandlesEvent(event) {
			filtered = append(filtered, handler)
		}
	}
	return filtered
}

// evHandlersToStr returns a comma-separated list of handler names.
func evHandlersToStr(handlers []api.EventHandler) string {
	var names []string
	for _, handler := range handlers {
		names = append(names, handler.String())
	}
	return strings.Join(names, ", ")
}

// eventSeqNumToStr returns string representing event sequence number.
func eventSeqNumToStr(seqNum uint64) string {
	return "#" + strconv.FormatUint(seqNum, 10)
}

// splitLongLines splits lines longer than limit by spaces. Continuation
// lines are indented.
func splitLongLines(lines []string, limit int, indent int) (split []string) {
	for _, line := range lines {
		if len(line) <= limit {
			split = append(split, line)
			continue
		}
		var current string
		for _, word := range strings.Split(line, " ") {
			switch {
			case current == "":
				current = word
			case len(current)+1+len(word) > limit:
				split = append(split, current)
				current = strings.Repeat(" ", indent) + word
			default:
				current += " " + word
			}
		}
		if current != "" {
			split = append(split, current)
		}
	}
	return split
}

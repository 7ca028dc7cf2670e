package usecase

import (
	"fmt"
	"strings"
	"time"
)

const dateRangeLayout = "January 02, 2006"

// ukUnions seeds the research prompt; the model is told the list is not exhaustive.
var ukUnions = []string{
	"ASLEF", "BALPA", "BFAWU", "CWU", "EIS", "Equity", "FBU", "GMB", "NASUWT", "NEU",
	"NUJ", "PCS", "Prospect", "RCM", "RMT", "TSSA", "UCU", "Unison", "Unite the Union",
	"USDAW", "TUC",
}

// DateRange describes the trailing window of windowDays ending at now, in loc.
func DateRange(now time.Time, windowDays int, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	end := now.In(loc)
	start := end.AddDate(0, 0, -windowDays)
	return start.Format(dateRangeLayout) + " to " + end.Format(dateRangeLayout)
}

// BuildResearchPrompt asks for verified union wins within dateRange as a bare JSON array.
func BuildResearchPrompt(dateRange string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research and find as many trade union victories, successful organising campaigns "+
		"and labour movement wins from %s in the United Kingdom as you can.\n\n", dateRange)
	b.WriteString("Unions to consider (not exhaustive): ")
	b.WriteString(strings.Join(ukUnions, ", "))
	b.WriteString(".\n\n")
	b.WriteString("Only include verified wins, not speculation or ongoing negotiations. ")
	b.WriteString("Prefer official union websites, reputable news outlets and government announcements. ")
	b.WriteString("Include exact dates, figures and measurable outcomes where available.\n\n")
	b.WriteString("Format the answer as a JSON array. Each element is an object with exactly these fields:\n")
	b.WriteString("- title: clear descriptive title\n")
	b.WriteString("- union_name: the union or labour organisation involved\n")
	b.WriteString("- emoji: one emoji representing the sector or type of win\n")
	b.WriteString("- date: YYYY-MM-DD\n")
	b.WriteString("- url: credible source URL\n")
	b.WriteString("- summary: 3-5 sentence summary\n\n")
	b.WriteString("Return ONLY the JSON array, with no text before or after it.")
	return b.String()
}

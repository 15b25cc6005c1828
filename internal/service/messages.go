package service

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/hostel-occupancy/internal/model"
)

func registrationMessage(req RegistrationRequest, res RegistrationResult, tempPassword string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hello %s,</p>", html.EscapeString(req.Name))
	fmt.Fprintf(&b, "<p>Your room registration is confirmed. We received %s %s; your outstanding balance is %s %s.</p>",
		html.EscapeString(req.Currency), formatAmount(req.InitialPaymentAmount),
		html.EscapeString(req.Currency), formatAmount(res.Balance))
	if tempPassword != "" {
		fmt.Fprintf(&b, "<p>An account was created for you. Sign in with <b>%s</b> and the temporary password <b>%s</b>, then change it.</p>",
			html.EscapeString(req.Email), html.EscapeString(tempPassword))
	}
	return "Your hostel registration", b.String()
}

func semesterReminderMessage(sem model.Semester, today time.Time) (string, string) {
	start := time.Date(sem.StartDate.Year(), sem.StartDate.Month(), sem.StartDate.Day(), 0, 0, 0, 0, today.Location())
	days := int(math.Round(start.Sub(today).Hours() / 24))
	subject := fmt.Sprintf("Semester %s starts in %d day(s)", sem.Name, days)
	body := fmt.Sprintf("<p>The semester <b>%s</b> starts on %s and ends on %s.</p><p>Please make sure rooms are ready.</p>",
		html.EscapeString(sem.Name), dateString(sem.StartDate), dateString(sem.EndDate))
	return subject, body
}

// formatAmount renders whole currency units with thousands separators.
func formatAmount(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

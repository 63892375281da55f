package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

const timeLayout = "2006-01-02 15:04 MST"

type styles struct {
	header lipgloss.Style
	ok     lipgloss.Style
	denied lipgloss.Style
	muted  lipgloss.Style
}

// newStyles binds styles to w so colour is dropped when w is not a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header: r.NewStyle().Bold(true).TabWidth(lipgloss.NoTabConversion),
		ok:     r.NewStyle().Foreground(lipgloss.Color("10")),
		denied: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		muted:  r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func parseUserID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.Invalid("cli.user_id", fmt.Sprintf("invalid user id %q", raw))
	}
	return id, nil
}

// parseLimit accepts a non-negative integer, -1 or "unlimited".
func parseLimit(raw string) (domain.Limit, error) {
	if strings.EqualFold(raw, "unlimited") {
		return domain.Unlimited, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < int64(domain.Unlimited) {
		return 0, domain.Invalid("cli.limit", fmt.Sprintf("limit must be an integer >= -1 or \"unlimited\", got %q", raw))
	}
	return domain.Limit(n), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func formatCycle(c domain.BillingCycle) string {
	return fmt.Sprintf("%s to %s", c.Start.UTC().Format(timeLayout), c.End.UTC().Format(timeLayout))
}

func printAccount(w io.Writer, a *domain.Account) {
	tw := newTable(w)
	fmt.Fprintf(tw, "user id:\t%s\n", a.ID)
	fmt.Fprintf(tw, "tier:\t%s\n", a.Tier.DisplayName())
	fmt.Fprintf(tw, "billing cycle:\t%s\n", formatCycle(a.Cycle))
	fmt.Fprintf(tw, "trial end:\t%s\n", formatTime(a.TrialEnd))
	customer := a.StripeCustomerID
	if customer == "" {
		customer = "-"
	}
	fmt.Fprintf(tw, "stripe customer:\t%s\n", customer)
	_ = tw.Flush()
}

func quotaStatus(s styles, r *domain.QuotaResult) string {
	switch {
	case r.Unlimited():
		return s.muted.Render("unlimited")
	case r.Allowed:
		return s.ok.Render("ok")
	default:
		return s.denied.Render("over limit")
	}
}

func formatRemaining(r *domain.QuotaResult) string {
	if r.Unlimited() {
		return "-"
	}
	return strconv.FormatInt(r.Remaining(), 10)
}

// Package board renders a zap leaderboard for the terminal, as a shareable
// note, and as a standalone HTML page.
package board

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"zapboard/internal/nips"
	"zapboard/internal/profile"
	"zapboard/internal/types"
	"zapboard/internal/zap"
)

// Entry is one ranked payer with display data
type Entry struct {
	Rank   int    `json:"rank"`
	Pubkey string `json:"pubkey"`
	Npub   string `json:"npub"`
	Name   string `json:"name"`
	Sats   int64  `json:"sats"`
}

// Board is a rendered-ready leaderboard
type Board struct {
	Entries   []Entry    `json:"entries"`
	TotalSats int64      `json:"total_sats"`
	Since     *time.Time `json:"since,omitempty"` // oldest counted receipt
}

// New joins an aggregation result with fetched profiles
func New(res zap.Result, profiles map[string]*types.ProfileInfo) Board {
	b := Board{
		Entries:   make([]Entry, 0, len(res.Ranked)),
		TotalSats: res.TotalSats,
	}
	for i, z := range res.Ranked {
		npub, _ := nips.EncodePubkey(z.Pubkey)
		b.Entries = append(b.Entries, Entry{
			Rank:   i + 1,
			Pubkey: z.Pubkey,
			Npub:   npub,
			Name:   profile.DisplayName(z.Pubkey, profiles[z.Pubkey]),
			Sats:   z.TotalSats,
		})
	}
	if res.OldestTimestamp != nil {
		since := time.Unix(*res.OldestTimestamp, 0).UTC()
		b.Since = &since
	}
	return b
}

// Empty reports whether there is nothing to show
func (b Board) Empty() bool {
	return len(b.Entries) == 0
}

// WriteText prints the leaderboard as an aligned table
func (b Board) WriteText(w io.Writer) error {
	if b.Empty() {
		_, err := fmt.Fprintln(w, "No zaps found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tSATS\tNPUB")
	for _, e := range b.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Rank, oneLine(e.Name), FormatSats(e.Sats), e.Npub)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTotal: %s sats from top %d zappers\n", FormatSats(b.TotalSats), len(b.Entries))
	if b.Since != nil {
		fmt.Fprintf(w, "Zaps counted since %s\n", b.Since.Format("2006-01-02 15:04 MST"))
	}
	return nil
}

// ShareNote builds the text of a kind-1 note thanking the top zappers
func (b Board) ShareNote(withSats bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "My top %d zappers ⚡\n\n", len(b.Entries))
	for _, e := range b.Entries {
		fmt.Fprintf(&sb, "%d. %s", e.Rank, mention(e))
		if withSats {
			fmt.Fprintf(&sb, " (%s sats)", FormatSats(e.Sats))
		}
		sb.WriteByte('\n')
	}
	if withSats {
		fmt.Fprintf(&sb, "\nTotal: %s sats\n", FormatSats(b.TotalSats))
	}
	sb.WriteString("\nThank you all! 🧡")
	return sb.String()
}

// mention is a NIP-27 reference so clients link the profile
func mention(e Entry) string {
	if e.Npub == "" {
		return oneLine(e.Name)
	}
	return "nostr:" + e.Npub
}

// FormatSats groups thousands with commas
func FormatSats(sats int64) string {
	neg := sats < 0
	if neg {
		sats = -sats
	}
	s := fmt.Sprintf("%d", sats)
	var out []byte
	for i := range s {
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

// WriteRelayStatus prints probe results
func WriteRelayStatus(w io.Writer, statuses []types.RelayStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RELAY\tSTATUS\tERROR")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.URL, s.Status, oneLine(s.Error))
	}
	return tw.Flush()
}

// oneLine keeps untrusted names from breaking table rows
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

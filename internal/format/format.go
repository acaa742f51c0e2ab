// Package format renders a fetched ban list into the chat message body.
// Rendering is pure: no I/O, no clock beyond the dates already carried by
// the list.
package format

import (
	"fmt"
	"strings"

	"watchtower/internal/domain"
)

const dateLayout = "02-Jan-2006"

// Render produces the outbound message for a successfully-determined ban
// list. The three outcomes (entries, valid-empty, market holiday) yield
// textually distinct bodies so readers can tell "nothing banned" from
// "no list expected". Fetch failures never reach this function.
func Render(list *domain.BanList) domain.Message {
	if list.Status == domain.StatusNoData {
		text := "Market holiday, no F&O ban list published today."
		if list.Reason != "" {
			text = fmt.Sprintf("Market holiday (%s), no F&O ban list published today.", list.Reason)
		}
		return domain.Message{Text: text}
	}

	if len(list.Entries) == 0 {
		return domain.Message{Text: fmt.Sprintf(
			"F&O ban list for %s: no securities are in the ban period today.",
			list.TradeDate.Format(dateLayout),
		)}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "F&O ban list for %s (%d securities):\n",
		list.TradeDate.Format(dateLayout), len(list.Entries))
	for _, e := range list.Entries {
		fmt.Fprintf(&b, "%d. %s\n", e.Serial, e.Symbol)
	}
	return domain.Message{Text: strings.TrimRight(b.String(), "\n")}
}

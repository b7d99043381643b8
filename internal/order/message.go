package order

import (
	"strconv"
	"strings"

	"ordercast/pkg/mdv2"
)

const bullet = "• "

var (
	header      = mdv2.Join(" ", "🎉", mdv2.B("New Order Received"), "🎉")
	noItemsLine = mdv2.Raw("_No items_")
)

// Format renders o as a MarkdownV2 notification.
//
// The identifier and the amount are placed in code spans; everything else
// coming from the store is escaped field by field.
func Format(o Order) string {
	id := "N/A"
	if o.ID > 0 {
		id = strconv.FormatInt(o.ID, 10)
	}

	amount := strings.TrimSpace(o.Total + " " + o.Currency)
	if amount == "" {
		amount = "N/A"
	}

	lines := []mdv2.M{
		header,
		"",
		field("Order ID:", mdv2.Code(id)),
		field("Status:", mdv2.Esc(o.Status)),
		field("Customer:", customer(o)),
		field("Total:", mdv2.Code(amount)),
		"",
		mdv2.B("Items:"),
	}
	if len(o.Items) == 0 {
		lines = append(lines, noItemsLine)
	}
	for _, it := range o.Items {
		lines = append(lines, itemLine(it))
	}
	return mdv2.Join("\n", lines...).String()
}

func field(label string, value mdv2.M) mdv2.M {
	return mdv2.B(label) + " " + value
}

func customer(o Order) mdv2.M {
	// Escaped separately so the joining space never passes through Esc.
	return mdv2.Join(" ", mdv2.Esc(o.FirstName), mdv2.Esc(o.LastName))
}

func itemLine(it Item) mdv2.M {
	return bullet + mdv2.EscAny(it.Quantity) + "x " + mdv2.Esc(it.Name)
}

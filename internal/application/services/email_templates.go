package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
)

func dailySubject(scan *entities.ProductScan) string {
	return "Vaš dnevni pregled: " + scan.Summary
}

func renderDailyEmail(scan *entities.ProductScan, highlights []termHighlight) string {
	var b strings.Builder
	b.WriteString("<h2>Dnevni pregled akcija</h2>")
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(scan.Summary))

	for _, highlight := range highlights {
		fmt.Fprintf(&b, "<h3>%s</h3><ul>", html.EscapeString(highlight.Term))
		for _, result := range highlight.Results {
			writeResultItem(&b, result)
		}
		b.WriteString("</ul>")
	}

	b.WriteString(`<p style="color:#888;font-size:12px">Primate ovaj email jer pratite proizvode na Popust.ba.</p>`)
	return b.String()
}

func renderWeeklyEmail(highlights []termHighlight) string {
	var b strings.Builder
	b.WriteString("<h2>Sedmični pregled akcija</h2>")
	b.WriteString("<p>Najbolji pronalasci za vaše pojmove u proteklih sedam dana:</p>")

	for _, highlight := range highlights {
		fmt.Fprintf(&b, "<h3>%s</h3><ul>", html.EscapeString(highlight.Term))
		for _, result := range highlight.Results {
			writeResultItem(&b, result)
		}
		b.WriteString("</ul>")
	}

	b.WriteString(`<p style="color:#888;font-size:12px">Sedmični pregled možete isključiti u postavkama.</p>`)
	return b.String()
}

func renderReengagementEmail(discounts []*entities.Product, today time.Time) string {
	var b strings.Builder
	b.WriteString("<h2>Nedostajete nam!</h2>")
	b.WriteString("<p>Dok vas nije bilo, pojavile su se nove akcije:</p>")

	if len(discounts) > 0 {
		b.WriteString("<ul>")
		for _, product := range discounts {
			price := product.EffectivePrice(today)
			fmt.Fprintf(&b, "<li>%s (%s) &ndash; <strong>%.2f KM</strong>",
				html.EscapeString(product.Title), html.EscapeString(product.StoreName), price)
			if product.ActiveDiscount(today) != nil {
				fmt.Fprintf(&b, ` <s style="color:#888">%.2f KM</s>`, product.BasePrice)
			}
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	}

	b.WriteString("<p>Svratite i pogledajte šta je novo.</p>")
	return b.String()
}

func streakBonusSubject(milestone int) string {
	return fmt.Sprintf("Čestitamo! %d dana zaredom na Popust.ba", milestone)
}

func renderStreakBonusEmail(milestone, credits int) string {
	var b strings.Builder
	b.WriteString("<h2>Čestitamo na upornosti!</h2>")
	fmt.Fprintf(&b, "<p>Posjetili ste nas <strong>%d dana zaredom</strong> i osvojili <strong>%d bonus kredita</strong>.</p>",
		milestone, credits)
	b.WriteString("<p>Krediti su već dodani na vaš račun.</p>")
	return b.String()
}

func writeResultItem(b *strings.Builder, result *entities.ScanResult) {
	fmt.Fprintf(b, "<li>%s (%s) &ndash; <strong>%.2f KM</strong>",
		html.EscapeString(result.ProductTitle), html.EscapeString(result.StoreName), result.EffectivePrice())
	if result.DiscountPrice != nil {
		fmt.Fprintf(b, ` <s style="color:#888">%.2f KM</s>`, result.BasePrice)
	}
	if result.IsNewToday {
		b.WriteString(" <em>novo</em>")
	}
	b.WriteString("</li>")
}

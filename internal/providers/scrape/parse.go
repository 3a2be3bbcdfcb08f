package scrape

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sawpanic/marketgov/internal/errs"
)

// NewsItem is one headline from the news resource.
type NewsItem struct {
	Title     string `json:"title"`
	Source    string `json:"source"`
	Link      string `json:"link"`
	Published string `json:"published"`
}

// Profile is the company-summary snapshot from the profile resource.
type Profile struct {
	Name     string `json:"name"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// Financials is the finance-highlight table from the financials resource.
type Financials struct {
	PER float64 `json:"per"`
	PBR float64 `json:"pbr"`
	EPS float64 `json:"eps"`
	BPS float64 `json:"bps"`
	ROE float64 `json:"roe"`
}

// InvestorTrend is one day's foreign/institutional net-buy row from
// the investor_trends resource.
type InvestorTrend struct {
	Date           string  `json:"date"`
	ForeignNetBuy  float64 `json:"foreign_net_buy"`
	InstitutionNet float64 `json:"institution_net_buy"`
}

// Opinion is one analyst consensus row from the opinions resource.
type Opinion struct {
	Firm           string  `json:"firm"`
	Rating         string  `json:"rating"`
	TargetPrice    float64 `json:"target_price"`
}

// ShortInterest is one day's short-sale balance from the
// short_interest resource.
type ShortInterest struct {
	Date           string  `json:"date"`
	ShortVolume    float64 `json:"short_volume"`
	ShortBalance   float64 `json:"short_balance_ratio"`
}

// Peer is one comparable-company row from the peers resource.
type Peer struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	PER  float64 `json:"per"`
}

func (a *Adapter) fetchDoc(ctx context.Context, resource, code string) (*goquery.Document, error) {
	raw, err := a.Fetch(ctx, resource, map[string]string{"code": code})
	if err != nil {
		return nil, err
	}
	var body string
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errs.New(errs.KindSchemaMismatch, "scrape", "failed to decode page envelope", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.KindSchemaMismatch, "scrape", resource+" page is not valid HTML", err)
	}
	return doc, nil
}

// News parses the headline table for code.
func (a *Adapter) News(ctx context.Context, code string) ([]NewsItem, error) {
	doc, err := a.fetchDoc(ctx, "news", code)
	if err != nil {
		return nil, err
	}
	var items []NewsItem
	doc.Find("table.type5 tr").Each(func(_ int, row *goquery.Selection) {
		title := strings.TrimSpace(row.Find(".title a").Text())
		if title == "" {
			return
		}
		link, _ := row.Find(".title a").Attr("href")
		items = append(items, NewsItem{
			Title:     title,
			Source:    strings.TrimSpace(row.Find(".info").Text()),
			Link:      link,
			Published: strings.TrimSpace(row.Find(".date").Text()),
		})
	})
	return items, nil
}

// Profile parses the company-overview section for code.
func (a *Adapter) Profile(ctx context.Context, code string) (Profile, error) {
	doc, err := a.fetchDoc(ctx, "profile", code)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Name:     strings.TrimSpace(doc.Find(".wrap_company h2 a").Text()),
		Sector:   strings.TrimSpace(doc.Find(".trade_compare th a").First().Text()),
		Industry: strings.TrimSpace(doc.Find("#content .h_sub2").First().Text()),
	}, nil
}

// Financials parses the finance-highlight table for code.
func (a *Adapter) Financials(ctx context.Context, code string) (Financials, error) {
	doc, err := a.fetchDoc(ctx, "financials", code)
	if err != nil {
		return Financials{}, err
	}
	table := doc.Find("#tab_con1 table")
	return Financials{
		PER: parseMetric(table, "PER"),
		PBR: parseMetric(table, "PBR"),
		EPS: parseMetric(table, "EPS"),
		BPS: parseMetric(table, "BPS"),
		ROE: parseMetric(table, "ROE"),
	}, nil
}

// InvestorTrends parses the foreign/institutional net-buy history for code.
func (a *Adapter) InvestorTrends(ctx context.Context, code string) ([]InvestorTrend, error) {
	doc, err := a.fetchDoc(ctx, "investor_trends", code)
	if err != nil {
		return nil, err
	}
	var trends []InvestorTrend
	doc.Find("table.type2 tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}
		date := strings.TrimSpace(cells.Eq(0).Text())
		if date == "" {
			return
		}
		trends = append(trends, InvestorTrend{
			Date:           date,
			ForeignNetBuy:  parseNumber(cells.Eq(5).Text()),
			InstitutionNet: parseNumber(cells.Eq(6).Text()),
		})
	})
	return trends, nil
}

// Opinions parses the analyst consensus table for code.
func (a *Adapter) Opinions(ctx context.Context, code string) ([]Opinion, error) {
	doc, err := a.fetchDoc(ctx, "opinions", code)
	if err != nil {
		return nil, err
	}
	var opinions []Opinion
	doc.Find("table.opinion tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		firm := strings.TrimSpace(cells.Eq(0).Text())
		if firm == "" {
			return
		}
		opinions = append(opinions, Opinion{
			Firm:        firm,
			Rating:      strings.TrimSpace(cells.Eq(1).Text()),
			TargetPrice: parseNumber(cells.Eq(2).Text()),
		})
	})
	return opinions, nil
}

// ShortInterestHistory parses the short-sale balance table for code.
func (a *Adapter) ShortInterestHistory(ctx context.Context, code string) ([]ShortInterest, error) {
	doc, err := a.fetchDoc(ctx, "short_interest", code)
	if err != nil {
		return nil, err
	}
	var history []ShortInterest
	doc.Find("table.type2 tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		date := strings.TrimSpace(cells.Eq(0).Text())
		if date == "" {
			return
		}
		history = append(history, ShortInterest{
			Date:         date,
			ShortVolume:  parseNumber(cells.Eq(1).Text()),
			ShortBalance: parseNumber(cells.Eq(2).Text()),
		})
	})
	return history, nil
}

// Peers parses the sector-comparison table for code.
func (a *Adapter) Peers(ctx context.Context, code string) ([]Peer, error) {
	doc, err := a.fetchDoc(ctx, "peers", code)
	if err != nil {
		return nil, err
	}
	var peers []Peer
	doc.Find("table.per_table tr").Each(func(_ int, row *goquery.Selection) {
		nameCell := row.Find("th a")
		name := strings.TrimSpace(nameCell.Text())
		if name == "" {
			return
		}
		href, _ := nameCell.Attr("href")
		cells := row.Find("td")
		peer := Peer{Name: name, Code: extractCode(href)}
		if cells.Length() > 0 {
			peer.PER = parseNumber(cells.Eq(0).Text())
		}
		peers = append(peers, peer)
	})
	return peers, nil
}

func parseMetric(table *goquery.Selection, label string) float64 {
	var value float64
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := strings.TrimSpace(row.Find("th").First().Text())
		if !strings.Contains(th, label) {
			return
		}
		value = parseNumber(row.Find("td").Last().Text())
	})
	return value
}

func parseNumber(raw string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	cleaned = strings.TrimSuffix(cleaned, "%")
	cleaned = strings.TrimPrefix(cleaned, "+")
	v, _ := strconv.ParseFloat(cleaned, 64)
	return v
}

func extractCode(href string) string {
	idx := strings.Index(href, "code=")
	if idx == -1 {
		return ""
	}
	code := href[idx+len("code="):]
	if amp := strings.Index(code, "&"); amp != -1 {
		code = code[:amp]
	}
	return code
}

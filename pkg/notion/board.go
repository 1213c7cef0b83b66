package notion

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// SyncTarget is the name recorded in the store when a review item has
// been pushed to the board.
const SyncTarget = "notion"

// ReviewCard is one manual-verification entry for the review board.
type ReviewCard struct {
	SessionID    string
	ProducerID   string
	BusinessName string
	Priority     string
	RiskScore    float64
	Issues       []string
	EscalatedAt  time.Time
}

// Board publishes review cards to a Notion database.
type Board struct {
	client Client
	dbID   string
}

// NewBoard creates a review board publisher for the given database.
func NewBoard(c Client, dbID string) *Board {
	return &Board{client: c, dbID: dbID}
}

// Publish upserts a card for the session: if the board already has a page
// for it (a previous sync that died before the store was marked), the page
// is refreshed in place, otherwise a new one is created. Returns the page
// id and whether a page was created.
func (b *Board) Publish(ctx context.Context, card ReviewCard) (string, bool, error) {
	existing, err := FindBySession(ctx, b.client, b.dbID, card.SessionID)
	if err != nil {
		return "", false, eris.Wrap(err, "notion: check existing card")
	}

	if existing != nil {
		req := &notionapi.PageUpdateRequest{Properties: buildCardProperties(card)}
		if _, err := b.client.UpdatePage(ctx, string(existing.ID), req); err != nil {
			return "", false, eris.Wrap(err, "notion: refresh review card")
		}
		return string(existing.ID), false, nil
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(b.dbID),
		},
		Properties: buildCardProperties(card),
	}
	page, err := b.client.CreatePage(ctx, req)
	if err != nil {
		return "", false, eris.Wrap(err, "notion: publish review card")
	}
	return string(page.ID), true, nil
}

// buildCardProperties converts a review card to Notion page properties.
// The title falls back to the producer id when no business name was
// collected before escalation.
func buildCardProperties(card ReviewCard) notionapi.Properties {
	title := card.BusinessName
	if title == "" {
		title = card.ProducerID
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: title}},
			},
		},
		"Session ID":  richTextProp(card.SessionID),
		"Producer ID": richTextProp(card.ProducerID),
		"Risk Score": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: card.RiskScore,
		},
		"Priority": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: card.Priority},
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{
				Name: "Queued",
			},
		},
	}

	if len(card.Issues) > 0 {
		props["Issues"] = richTextProp(strings.Join(card.Issues, "; "))
	}
	if !card.EscalatedAt.IsZero() {
		d := notionapi.Date(card.EscalatedAt)
		props["Escalated"] = notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	return props
}

func richTextProp(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"instagram-bot/models"
)

const igGraphAPI = "https://graph.facebook.com/v18.0"

// SendInstagramText sends a plain text DM, optionally with call-to-action
// buttons, via the Instagram messaging endpoint.
func SendInstagramText(ctx context.Context, recipientID, text string, buttons []models.Button, accessToken string) error {
	url := fmt.Sprintf("%s/me/messages?access_token=%s", igGraphAPI, accessToken)
	return postGraphJSON(ctx, url, buildTextPayload(recipientID, text, buttons))
}

// SendInstagramMedia sends a media attachment (image/video/audio) by URL.
func SendInstagramMedia(ctx context.Context, recipientID, mediaType, mediaURL, accessToken string) error {
	url := fmt.Sprintf("%s/me/messages?access_token=%s", igGraphAPI, accessToken)
	return postGraphJSON(ctx, url, buildMediaPayload(recipientID, mediaType, mediaURL))
}

// SendInstagramCards sends a multi-item card carousel as a generic template.
func SendInstagramCards(ctx context.Context, recipientID string, cards []models.Card, accessToken string) error {
	url := fmt.Sprintf("%s/me/messages?access_token=%s", igGraphAPI, accessToken)
	return postGraphJSON(ctx, url, buildCardsPayload(recipientID, cards))
}

// buildTextPayload constructs the messaging payload for a text reply. With
// buttons present it becomes a button template.
func buildTextPayload(recipientID, text string, buttons []models.Button) map[string]interface{} {
	if len(buttons) == 0 {
		return map[string]interface{}{
			"recipient": map[string]string{"id": recipientID},
			"message":   map[string]string{"text": text},
		}
	}

	buttonList := make([]map[string]string, 0, len(buttons))
	for _, b := range buttons {
		buttonList = append(buttonList, map[string]string{
			"type":  "web_url",
			"title": b.Title,
			"url":   b.URL,
		})
	}

	return map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message": map[string]interface{}{
			"attachment": map[string]interface{}{
				"type": "template",
				"payload": map[string]interface{}{
					"template_type": "button",
					"text":          text,
					"buttons":       buttonList,
				},
			},
		},
	}
}

// buildMediaPayload constructs the messaging payload for a media attachment.
func buildMediaPayload(recipientID, mediaType, mediaURL string) map[string]interface{} {
	if mediaType == "" {
		mediaType = "image"
	}

	return map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message": map[string]interface{}{
			"attachment": map[string]interface{}{
				"type": mediaType,
				"payload": map[string]interface{}{
					"url": mediaURL,
				},
			},
		},
	}
}

// buildCardsPayload constructs a generic-template carousel, one element per
// card with title, subtitle, image, default action link and buttons.
func buildCardsPayload(recipientID string, cards []models.Card) map[string]interface{} {
	elements := make([]map[string]interface{}, 0, len(cards))
	for _, card := range cards {
		element := map[string]interface{}{
			"title": card.Title,
		}
		if card.Subtitle != "" {
			element["subtitle"] = card.Subtitle
		}
		if card.ImageURL != "" {
			element["image_url"] = card.ImageURL
		}
		if card.LinkURL != "" {
			element["default_action"] = map[string]string{
				"type": "web_url",
				"url":  card.LinkURL,
			}
		}
		if len(card.Buttons) > 0 {
			buttonList := make([]map[string]string, 0, len(card.Buttons))
			for _, b := range card.Buttons {
				buttonList = append(buttonList, map[string]string{
					"type":  "web_url",
					"title": b.Title,
					"url":   b.URL,
				})
			}
			element["buttons"] = buttonList
		}
		elements = append(elements, element)
	}

	return map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message": map[string]interface{}{
			"attachment": map[string]interface{}{
				"type": "template",
				"payload": map[string]interface{}{
					"template_type": "generic",
					"elements":      elements,
				},
			},
		},
	}
}

// postGraphJSON submits one payload to the Graph API. Transport errors are
// returned without retry; the caller decides whether to log a failed status.
func postGraphJSON(ctx context.Context, url string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Failed to send Instagram message", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("failed to send message: %s", resp.Status)
	}

	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// FCMNotifier posts JSON to an FCM HTTPv1 endpoint using a server key or
// oauth token. Errors are logged and swallowed.
type FCMNotifier struct {
	Endpoint string
	Key      string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewFCMNotifier(endpoint, key string, logger *slog.Logger) *FCMNotifier {
	return &FCMNotifier{
		Endpoint: endpoint,
		Key:      key,
		Client:   &http.Client{Timeout: 3 * time.Second},
		Logger:   logger,
	}
}

func (f *FCMNotifier) Notify(ctx context.Context, recipientID string, n Notification) {
	data := map[string]string{"title": n.Title, "message": n.Message, "intensity": n.Intensity}
	for k, v := range n.Metadata {
		data[k] = v
	}
	body := map[string]interface{}{"message": map[string]interface{}{"token": recipientID, "data": data}}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Key != "" {
		req.Header.Set("Authorization", "Bearer "+f.Key)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		if f.Logger != nil {
			f.Logger.Warn("fcm push failed", "recipient", recipientID, "error", err)
		}
		return
	}
	resp.Body.Close()
}

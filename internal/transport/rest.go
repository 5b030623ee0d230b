package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
)

// Blob is a fetched binary resource with its server-side filename.
type Blob struct {
	Filename string
	Data     []byte
}

// PicSize selects which rendition of a picture to fetch.
type PicSize string

const (
	PicThumbnail PicSize = "THUMBNAIL"
	PicOriginal  PicSize = "ORIGINAL"
)

// ProfilePic fetches a user's profile picture. A nil blob without error
// means the user has no picture set. ErrNonexistentUser is returned when
// the user does not exist at all.
func (c *Client) ProfilePic(ctx context.Context, userID int32, size PicSize) (*Blob, error) {
	q := url.Values{}
	q.Set("user-id", strconv.FormatInt(int64(userID), 10))
	q.Set("pic-type", string(size))
	return c.fetchBlob(ctx, "/profile-pic?"+q.Encode(), ErrNonexistentUser)
}

// GroupChatPic fetches a group chat's picture with the same absent/missing
// semantics as ProfilePic.
func (c *Client) GroupChatPic(ctx context.Context, chatID int32, size PicSize) (*Blob, error) {
	q := url.Values{}
	q.Set("chat-id", strconv.FormatInt(int64(chatID), 10))
	q.Set("pic-type", string(size))
	return c.fetchBlob(ctx, "/group-chat-pic?"+q.Encode(), ErrNonexistentChat)
}

// MessageFile fetches the binary of a media message (pic, audio, video or
// doc). Nil without error means the server no longer has the resource.
func (c *Client) MessageFile(ctx context.Context, messageID int32) (*Blob, error) {
	q := url.Values{}
	q.Set("message-id", strconv.FormatInt(int64(messageID), 10))
	return c.fetchBlob(ctx, "/message-file?"+q.Encode(), nil)
}

func (c *Client) fetchBlob(ctx context.Context, path string, nonexistent error) (*Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &ConnectionError{Err: err}
		}
		return &Blob{Filename: blobFilename(resp), Data: data}, nil
	case http.StatusNoContent:
		// Resource confirmed absent.
		return nil, nil
	case http.StatusBadRequest:
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if nonexistent != nil && (body.Reason == "NONEXISTENT_USER" || body.Reason == "NONEXISTENT_CHAT") {
			return nil, nonexistent
		}
		return nil, &ServerError{Message: body.Reason}
	case http.StatusUnauthorized:
		return nil, &UnauthorizedError{}
	default:
		return nil, &ServerError{Message: resp.Status}
	}
}

func blobFilename(resp *http.Response) string {
	cd := resp.Header.Get("Content-Disposition")
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	return params["filename"]
}

package fieldapi

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"github.com/disintegration/imaging"
)

type listResponse struct {
	Items []models.WorkOrderSummary `json:"items"`
}

type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at"`
	Technician struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		BusinessId string `json:"business_id"`
	} `json:"technician"`
}

// Login authenticates against the backend. The login path carries its own
// 15s deadline; everything else inherits the client default.
func (c *Client) Login(ctx context.Context, username string, password string) (*LoginResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	var out LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", nil, map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("login response has no token")
	}
	return &out, nil
}

func (c *Client) ListWorkOrders(ctx context.Context, token string) ([]models.WorkOrderSummary, error) {
	params := url.Values{}
	params.Set("active", "true")
	var out listResponse
	if err := c.getJSON(ctx, "/api/work-orders", token, params, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) GetWorkOrder(ctx context.Context, token string, workOrderId string) (*models.WorkOrderDetail, error) {
	var out models.WorkOrderDetail
	if err := c.getJSON(ctx, "/api/work-orders/"+workOrderId, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, token string, workOrderId string, baseVersion int, status string) error {
	return c.doJSON(ctx, http.MethodPatch, "/api/work-orders/"+workOrderId+"/status", token,
		versionHeader(baseVersion), map[string]string{"status": status}, nil)
}

func (c *Client) UpdateChecklistItem(ctx context.Context, token string, workOrderId string, baseVersion int, itemIndex int, done bool) error {
	return c.doJSON(ctx, http.MethodPatch, "/api/work-orders/"+workOrderId+"/checklist", token,
		versionHeader(baseVersion), map[string]any{"item_index": itemIndex, "done": done}, nil)
}

func (c *Client) UpdateObservation(ctx context.Context, token string, workOrderId string, baseVersion int, text string) error {
	return c.doJSON(ctx, http.MethodPatch, "/api/work-orders/"+workOrderId+"/observation", token,
		versionHeader(baseVersion), map[string]string{"text": text}, nil)
}

func (c *Client) SignContract(ctx context.Context, token string, workOrderId string, baseVersion int, signaturePNG []byte, signedBy string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/work-orders/"+workOrderId+"/signature", token,
		versionHeader(baseVersion), map[string]any{"signature": signaturePNG, "signed_by": signedBy}, nil)
}

// photoMaxDimension bounds uploads from high-resolution device cameras.
const photoMaxDimension = 1600

// AddPhoto uploads a photo as multipart form data, downscaled first so a
// 12MP camera shot doesn't burn the technician's data plan. Input that
// doesn't decode as an image is sent as-is; the backend validates it.
func (c *Client) AddPhoto(ctx context.Context, token string, workOrderId string, caption string, photo []byte) error {
	photo = downscalePhoto(photo)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(photo); err != nil {
		return err
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return c.do(ctx, http.MethodPost, "/api/work-orders/"+workOrderId+"/photos", token,
		nil, &buf, writer.FormDataContentType(), nil)
}

func downscalePhoto(photo []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(photo))
	if err != nil {
		return photo
	}
	bounds := img.Bounds()
	if bounds.Dx() <= photoMaxDimension && bounds.Dy() <= photoMaxDimension {
		return photo
	}
	resized := imaging.Fit(img, photoMaxDimension, photoMaxDimension, imaging.Lanczos)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, resized, &jpeg.Options{Quality: 80}); err != nil {
		return photo
	}
	return out.Bytes()
}

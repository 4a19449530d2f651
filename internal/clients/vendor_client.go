package clients

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// VendorClient handles communication with the vendor-service
type VendorClient struct {
	baseURL    string
	httpClient *http.Client
}

// Vendor represents a vendor from vendor-service
type Vendor struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenantId"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	Status       string  `json:"status"`
	ContactEmail *string `json:"contactEmail,omitempty"`
}

// VendorResponse from vendor-service
type VendorResponse struct {
	Success bool    `json:"success"`
	Data    *Vendor `json:"data,omitempty"`
	Message *string `json:"message,omitempty"`
}

// NewVendorClient creates a new vendor client
func NewVendorClient() *VendorClient {
	baseURL := os.Getenv("VENDOR_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://vendor-service:8080"
	}

	return &VendorClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetVendorByID retrieves a vendor by its ID
func (c *VendorClient) GetVendorByID(tenantID, vendorID string) (*Vendor, error) {
	url := fmt.Sprintf("%s/api/v1/vendors/%s", c.baseURL, vendorID)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	// Use Istio JWT claim headers for authentication
	req.Header.Set("x-jwt-claim-tenant-id", tenantID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor not found: %d", resp.StatusCode)
	}

	var result VendorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Data, nil
}

package peers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

var jsonHeader = http.Header{"Content-Type": []string{"application/json"}}

func jsonResponse(status int, body string) *http.Response {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	return resp
}

func testClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(5*time.Second, logging.NewWithWriter(io.Discard, zerolog.Disabled))
	httpmock.ActivateNonDefault(c.HTTPClient().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestClient_HealthCheck(t *testing.T) {
	c := testClient(t)

	httpmock.RegisterResponder("GET", "https://cn2.example.com/health_check/verbose",
		httpmock.NewStringResponder(200,
			`{"status":"healthy","endpoint":"https://cn2.example.com","version":"1.2.0"}`).HeaderSet(jsonHeader))

	health, err := c.HealthCheck(context.Background(), "https://cn2.example.com")
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q", health.Status)
	}
	if health.Version != "1.2.0" {
		t.Errorf("Expected version 1.2.0, got %q", health.Version)
	}
}

func TestClient_HealthCheck_AnySuccessStatus(t *testing.T) {
	c := testClient(t)

	httpmock.RegisterResponder("GET", "https://cn2.example.com/health_check/verbose",
		httpmock.NewStringResponder(202, `{"status":"starting","endpoint":"https://cn2.example.com"}`).HeaderSet(jsonHeader))

	health, err := c.HealthCheck(context.Background(), "https://cn2.example.com")
	if err != nil {
		t.Fatalf("HealthCheck must accept any 2xx response: %v", err)
	}
	if health.Status != "starting" {
		t.Errorf("Expected status passed through, got %q", health.Status)
	}
}

func TestClient_HealthCheck_ServerError(t *testing.T) {
	c := testClient(t)

	httpmock.RegisterResponder("GET", "https://cn2.example.com/health_check/verbose",
		httpmock.NewStringResponder(500, `{}`))

	if _, err := c.HealthCheck(context.Background(), "https://cn2.example.com"); err == nil {
		t.Fatal("Expected error on 500 response")
	}
}

func TestClient_GetClockStatus(t *testing.T) {
	c := testClient(t)

	httpmock.RegisterResponder("GET", "https://cn2.example.com/users/clock_status/0xabc",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("returnDigest") != "true" {
				return jsonResponse(200, `{"data":{"clockValue":7}}`), nil
			}
			return jsonResponse(200,
				`{"data":{"clockValue":7,"digest":"0xdeadbeef00000000"}}`), nil
		})

	plain, err := c.GetClockStatus(context.Background(), "https://cn2.example.com", "0xabc", false)
	if err != nil {
		t.Fatalf("GetClockStatus failed: %v", err)
	}
	if plain.ClockValue != 7 || plain.Digest != nil {
		t.Errorf("Expected clock 7 without digest, got %+v", plain)
	}

	withDigest, err := c.GetClockStatus(context.Background(), "https://cn2.example.com", "0xabc", true)
	if err != nil {
		t.Fatalf("GetClockStatus with digest failed: %v", err)
	}
	if withDigest.Digest == nil || *withDigest.Digest != "0xdeadbeef00000000" {
		t.Errorf("Expected digest in response, got %+v", withDigest)
	}
}

func TestClient_BatchClockStatus(t *testing.T) {
	c := testClient(t)

	httpmock.RegisterResponder("POST", "https://cn2.example.com/users/batch_clock_status",
		func(req *http.Request) (*http.Response, error) {
			var body models.BatchClockStatusRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(400, `{}`), nil
			}
			if len(body.WalletPublicKeys) != 2 || !body.ReturnDigests {
				return httpmock.NewStringResponse(400, `{}`), nil
			}
			return jsonResponse(200,
				`{"data":{"users":[
					{"walletPublicKey":"0xaaa","clock":3,"digest":"0x01"},
					{"walletPublicKey":"0xbbb","clock":0}
				]}}`), nil
		})

	users, err := c.BatchClockStatus(context.Background(), "https://cn2.example.com",
		[]string{"0xaaa", "0xbbb"}, true)
	if err != nil {
		t.Fatalf("BatchClockStatus failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(users))
	}
	if users[0].Clock != 3 || users[0].Digest == nil {
		t.Errorf("Unexpected first user: %+v", users[0])
	}
	if users[1].Clock != 0 || users[1].Digest != nil {
		t.Errorf("Unexpected second user: %+v", users[1])
	}
}

func TestClient_Export(t *testing.T) {
	c := testClient(t)

	httpmock.RegisterResponder("GET", "https://cn1.example.com/users/export/0xabc",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("minClock") != "2" {
				return httpmock.NewStringResponse(400, `{}`), nil
			}
			return jsonResponse(200,
				`{"data":{"wallet":"0xabc","clock":4,"records":[{"clock":3,"sourceTable":"tracks"},{"clock":4,"sourceTable":"files"}],"hasMore":false}}`), nil
		})

	export, err := c.Export(context.Background(), "https://cn1.example.com", "0xabc", 2)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if export.Clock != 4 {
		t.Errorf("Expected clock 4, got %d", export.Clock)
	}
	if len(export.Records) != 2 || export.Records[0].Clock != 3 {
		t.Errorf("Unexpected records: %+v", export.Records)
	}
	if export.HasMore {
		t.Error("Expected hasMore false")
	}
}

func TestClient_RequestSync(t *testing.T) {
	c := testClient(t)

	var captured models.SyncRequest
	httpmock.RegisterResponder("POST", "https://cn2.example.com/sync",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				return httpmock.NewStringResponse(400, `{}`), nil
			}
			return httpmock.NewStringResponse(202,
				`{"data":{"accepted":true,"wallet":"0xabc"}}`), nil
		})

	err := c.RequestSync(context.Background(), "https://cn2.example.com", models.SyncRequest{
		Wallet:              []string{"0xabc"},
		CreatorNodeEndpoint: "https://cn1.example.com",
		SyncType:            "recurring",
	})
	if err != nil {
		t.Fatalf("RequestSync failed: %v", err)
	}
	if len(captured.Wallet) != 1 || captured.Wallet[0] != "0xabc" {
		t.Errorf("Unexpected wallet payload: %v", captured.Wallet)
	}
	if captured.CreatorNodeEndpoint != "https://cn1.example.com" {
		t.Errorf("Unexpected primary endpoint: %s", captured.CreatorNodeEndpoint)
	}
}

func TestClient_RequestSync_Rejected(t *testing.T) {
	c := testClient(t)

	httpmock.RegisterResponder("POST", "https://cn2.example.com/sync",
		httpmock.NewStringResponder(409, `{"error":{"code":"conflict"}}`))

	err := c.RequestSync(context.Background(), "https://cn2.example.com", models.SyncRequest{
		Wallet:              []string{"0xabc"},
		CreatorNodeEndpoint: "https://cn1.example.com",
		SyncType:            "manual",
	})
	if err == nil {
		t.Fatal("Expected error on rejected sync request")
	}
}

func TestJoinURL_TrailingSlash(t *testing.T) {
	got := joinURL("https://cn2.example.com/", "/sync")
	if got != "https://cn2.example.com/sync" {
		t.Errorf("Unexpected joined URL: %s", got)
	}
}

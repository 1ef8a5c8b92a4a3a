package amee

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

const electricityDrillPath = "/data/business/energy/electricity/drill"

func drillUIDResponse(uid string) map[string]interface{} {
	return map[string]interface{}{
		"choices": map[string]interface{}{
			"name": "uid",
			"choices": []map[string]string{
				{"name": uid, "value": uid},
			},
		},
	}
}

func TestDrillComplete(t *testing.T) {
	f := newFakeAMEE(t)
	f.handle(electricityDrillPath, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("country"); got != "United Kingdom" {
			t.Errorf("expected country choice in query, got %q", got)
		}
		writeJSON(t, w, drillUIDResponse("DATA1"))
	})

	client := f.client()
	uid, err := client.DrillComplete(context.Background(), "/business/energy/electricity", Choices{"country": "United Kingdom"})
	if err != nil {
		t.Fatalf("DrillComplete() returned error: %v", err)
	}
	if uid != "DATA1" {
		t.Errorf("expected uid DATA1, got %q", uid)
	}
}

func TestDrillReturnsNextChoice(t *testing.T) {
	f := newFakeAMEE(t)
	f.handleJSON(electricityDrillPath, http.StatusOK, map[string]interface{}{
		"choices": map[string]interface{}{
			"name": "country",
			"choices": []map[string]string{
				{"name": "United Kingdom", "value": "United Kingdom"},
				{"name": "Ireland", "value": "Ireland"},
			},
		},
	})

	client := f.client()
	result, err := client.Drill(context.Background(), "/business/energy/electricity", nil)
	if err != nil {
		t.Fatalf("Drill() returned error: %v", err)
	}
	if result.Complete() {
		t.Fatal("expected incomplete drilldown")
	}
	if result.Next.Name != "country" {
		t.Errorf("expected next choice 'country', got %q", result.Next.Name)
	}
	if len(result.Next.Choices) != 2 || result.Next.Choices[0] != "United Kingdom" {
		t.Errorf("unexpected simplified choices: %v", result.Next.Choices)
	}
}

func TestDrillCompleteFailsOnIncompleteDrilldown(t *testing.T) {
	f := newFakeAMEE(t)
	f.handleJSON(electricityDrillPath, http.StatusOK, map[string]interface{}{
		"choices": map[string]interface{}{
			"name":    "country",
			"choices": []map[string]string{{"name": "United Kingdom", "value": "United Kingdom"}},
		},
	})

	client := f.client()
	_, err := client.DrillComplete(context.Background(), "/business/energy/electricity", nil)
	if err == nil {
		t.Fatal("expected error for incomplete drilldown")
	}
	if !errors.Is(err, ErrIncompleteDrilldown) {
		t.Errorf("expected ErrIncompleteDrilldown, got %v", err)
	}
}

func TestDrillInvalidValue(t *testing.T) {
	f := newFakeAMEE(t)
	f.handleJSON(electricityDrillPath, http.StatusOK, map[string]interface{}{
		"choices": map[string]interface{}{
			"name":    "uid",
			"choices": []map[string]string{},
		},
	})

	client := f.client()
	_, err := client.Drill(context.Background(), "/business/energy/electricity", Choices{"country": "Atlantis"})
	if err == nil {
		t.Fatal("expected error when no choices are returned")
	}
	if !IsAPIError(err) {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestDrillRejectsRelativePath(t *testing.T) {
	client := New("user", "secret")
	_, err := client.Drill(context.Background(), "business/energy", nil)
	if err == nil {
		t.Fatal("expected error for relative path")
	}
}

func TestDrillIsServedFromCacheOnRepeat(t *testing.T) {
	f := newFakeAMEE(t)
	f.handle(electricityDrillPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, drillUIDResponse("DATA1"))
	})

	client := f.client(WithCache(time.Minute))
	choices := Choices{"country": "United Kingdom"}

	for i := 0; i < 2; i++ {
		uid, err := client.DrillComplete(context.Background(), "/business/energy/electricity", choices)
		if err != nil {
			t.Fatalf("drill %d returned error: %v", i, err)
		}
		if uid != "DATA1" {
			t.Errorf("drill %d: expected DATA1, got %q", i, uid)
		}
	}

	if got := atomic.LoadInt32(&f.dataCalls); got != 1 {
		t.Errorf("expected repeated drilldown to hit the cache, got %d network calls", got)
	}
}

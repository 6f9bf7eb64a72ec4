package pagination

import (
	"errors"
	"net/url"
	"reflect"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
	if !reflect.DeepEqual(params.Cursor, Cursor{}) {
		t.Fatalf("expected zero cursor, got %#v", params.Cursor)
	}
	if params.Orders != nil {
		t.Fatalf("expected nil orders, got %#v", params.Orders)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("pageSize", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("pageSize", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-5"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParseOrderBy(t *testing.T) {
	values := url.Values{}
	values.Add("orderBy", "created_at desc, total_amount")
	values.Add("orderBy", "created_at:desc")

	params, err := Parse(values, Options{AllowedOrderFields: []string{"created_at", "total_amount"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	want := []Order{
		{Field: "created_at", Desc: true},
		{Field: "total_amount"},
	}
	if !reflect.DeepEqual(params.Orders, want) {
		t.Fatalf("unexpected orders: %#v", params.Orders)
	}
}

func TestParseOrderByRejectsUnknownField(t *testing.T) {
	values := url.Values{}
	values.Set("orderBy", "secret_field desc")

	_, err := Parse(values, Options{AllowedOrderFields: []string{"created_at"}})
	if !errors.Is(err, ErrInvalidOrderBy) {
		t.Fatalf("expected ErrInvalidOrderBy, got %v", err)
	}
}

func TestParseOrderByRejectsBadDirection(t *testing.T) {
	values := url.Values{}
	values.Set("orderBy", "created_at sideways")

	_, err := Parse(values, Options{AllowedOrderFields: []string{"created_at"}})
	if !errors.Is(err, ErrInvalidOrderBy) {
		t.Fatalf("expected ErrInvalidOrderBy, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"ord_01HTX", float64(1700000000)}}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if !reflect.DeepEqual(decoded, cursor) {
		t.Fatalf("round trip mismatch: %#v vs %#v", decoded, cursor)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	for _, raw := range []string{"%%%", "not-base64!!"} {
		if _, err := DecodeToken(raw); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", raw, err)
		}
	}
}

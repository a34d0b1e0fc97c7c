package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"audiotextbot/internal/domain"
	"audiotextbot/internal/infra/openai"
)

func speechSegment() domain.AudioSegment {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.25
	}
	return domain.AudioSegment{SessionID: "s", Seq: 1, SampleRate: 16000, Samples: samples}
}

func TestWhisperModel_Recognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path: got %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model: got %q", got)
		}
		if got := r.FormValue("language"); got != "el" {
			t.Errorf("language: got %q", got)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("reading file part: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "segment.wav" || string(data[:4]) != "RIFF" {
			t.Errorf("file part: %s, %q", header.Filename, data[:4])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer server.Close()

	model := openai.NewWhisperModel(openai.WhisperConfig{
		APIKey:   "test-key",
		BaseURL:  server.URL + "/v1",
		Language: "el",
	})

	if _, err := model.Recognize(context.Background(), speechSegment()); !errors.Is(err, domain.ErrModelNotLoaded) {
		t.Errorf("recognize before load: got %v, want ErrModelNotLoaded", err)
	}

	if err := model.Load(context.Background()); err != nil {
		t.Fatalf("loading: %v", err)
	}
	defer model.Close()

	text, err := model.Recognize(context.Background(), speechSegment())
	if err != nil {
		t.Fatalf("recognizing: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text: got %q, want %q", text, "hello world")
	}
}

func TestWhisperModel_Load(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models/whisper-1" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"whisper-1","object":"model","owned_by":"openai"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	tests := []struct {
		name    string
		cfg     openai.WhisperConfig
		wantErr bool
	}{
		{
			name:    "missing key",
			cfg:     openai.WhisperConfig{BaseURL: server.URL + "/v1"},
			wantErr: true,
		},
		{
			name: "known model",
			cfg:  openai.WhisperConfig{APIKey: "k", BaseURL: server.URL + "/v1", VerifyModel: true},
		},
		{
			name:    "unknown model",
			cfg:     openai.WhisperConfig{APIKey: "k", BaseURL: server.URL + "/v1", Model: "whisper-9", VerifyModel: true},
			wantErr: true,
		},
		{
			name: "unverified model",
			cfg:  openai.WhisperConfig{APIKey: "k", BaseURL: server.URL + "/v1", Model: "whisper-9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := openai.NewWhisperModel(tt.cfg).Load(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("load error: got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

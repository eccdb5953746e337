package render

import (
	"strings"
	"testing"

	"manimrender/internal/pkg/errors"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{name: "valid", req: Request{VideoID: "abc123", Script: "from manim import *", SceneName: "Intro"}},
		{name: "blank id allowed", req: Request{Script: "x", SceneName: "Intro"}},
		{name: "underscore scene", req: Request{Script: "x", SceneName: "_Scene2"}},
		{name: "missing script", req: Request{VideoID: "a", SceneName: "Intro"}, wantErr: "script"},
		{name: "blank script", req: Request{VideoID: "a", Script: "  \n", SceneName: "Intro"}, wantErr: "script"},
		{name: "missing scene", req: Request{VideoID: "a", Script: "x"}, wantErr: "sceneName"},
		{name: "scene with dot", req: Request{Script: "x", SceneName: "a.B"}, wantErr: "sceneName"},
		{name: "scene starting with digit", req: Request{Script: "x", SceneName: "1Intro"}, wantErr: "sceneName"},
		{name: "path traversal id", req: Request{VideoID: "../etc", Script: "x", SceneName: "Intro"}, wantErr: "videoId"},
		{name: "id with slash", req: Request{VideoID: "a/b", Script: "x", SceneName: "Intro"}, wantErr: "videoId"},
		{name: "id too long", req: Request{VideoID: strings.Repeat("a", 129), Script: "x", SceneName: "Intro"}, wantErr: "videoId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := errors.GetFields(err)["field"]; got != tt.wantErr {
				t.Errorf("field = %v, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestRequestNormalize(t *testing.T) {
	r := Request{VideoID: " abc ", SceneName: " Intro\n", Quality: " HIGH "}
	r.Normalize()
	if r.VideoID != "abc" || r.SceneName != "Intro" || r.Quality != "high" {
		t.Errorf("unexpected normalized request %+v", r)
	}
}

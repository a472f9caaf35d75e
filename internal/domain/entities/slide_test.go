package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlide_Validate(t *testing.T) {
	tests := []struct {
		name    string
		slide   Slide
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid cover slide",
			slide: Slide{Title: "Intro", Content: "Hello world", Index: 0, Type: SlideTypeCover},
		},
		{
			name:  "empty content is allowed",
			slide: Slide{Title: "Agenda", Index: 2, Type: SlideTypeContent},
		},
		{
			name:    "negative index",
			slide:   Slide{Title: "Intro", Index: -1, Type: SlideTypeCover},
			wantErr: true,
			errMsg:  "slide index must be non-negative",
		},
		{
			name:    "unknown type",
			slide:   Slide{Title: "Intro", Index: 1, Type: "appendix"},
			wantErr: true,
			errMsg:  "slide type must be cover, content or conclusion",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slide.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassifySlide(t *testing.T) {
	tests := []struct {
		name  string
		index int
		title string
		want  SlideType
	}{
		{"first slide is cover", 0, "Conclusion", SlideTypeCover},
		{"plain content", 1, "Market Overview", SlideTypeContent},
		{"conclusion keyword", 4, "Conclusion", SlideTypeConclusion},
		{"summary keyword mixed case", 3, "Executive SUMMARY", SlideTypeConclusion},
		{"thank you keyword", 7, "Thank You!", SlideTypeConclusion},
		{"keyword inside longer title", 2, "Summary of findings", SlideTypeConclusion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySlide(tt.index, tt.title))
		})
	}
}

func TestNewSlide(t *testing.T) {
	slide := NewSlide(0, "Intro", "Hello world")

	assert.Equal(t, Slide{Title: "Intro", Content: "Hello world", Index: 0, Type: SlideTypeCover}, slide)
	assert.Equal(t, "Intro Hello world", slide.Text())
	assert.NoError(t, slide.Validate())
}

func TestDefaultSlideTitle(t *testing.T) {
	assert.Equal(t, "Slide 1", DefaultSlideTitle(0))
	assert.Equal(t, "Slide 12", DefaultSlideTitle(11))
}

func TestSlide_Text(t *testing.T) {
	assert.Equal(t, "Only title", (&Slide{Title: "Only title"}).Text())
	assert.Equal(t, "body", (&Slide{Content: "body"}).Text())
}

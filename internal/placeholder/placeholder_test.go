package placeholder

import (
	"slices"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []Variable
	}{
		{
			name:     "distinct in first-occurrence order",
			template: "Hi {{name}}, {{greeting}} {{name}}",
			want: []Variable{
				{Name: "name", Placeholder: "{{name}}"},
				{Name: "greeting", Placeholder: "{{greeting}}"},
			},
		},
		{
			name:     "no placeholders",
			template: "plain text",
			want:     []Variable{},
		},
		{
			name:     "digits and underscores",
			template: "{{user_1}} and {{2nd}}",
			want: []Variable{
				{Name: "user_1", Placeholder: "{{user_1}}"},
				{Name: "2nd", Placeholder: "{{2nd}}"},
			},
		},
		{
			name:     "spaces and punctuation are not placeholders",
			template: "{{ name }} {{first-name}} {{}} {name}",
			want:     []Variable{},
		},
		{
			name:     "adjacent placeholders",
			template: "{{a}}{{b}}{{a}}",
			want: []Variable{
				{Name: "a", Placeholder: "{{a}}"},
				{Name: "b", Placeholder: "{{b}}"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.template)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Extract(%q) = %v, want %v", tc.template, got, tc.want)
			}
		})
	}
}

func TestNames(t *testing.T) {
	got := Names("{{topic}} for {{audience}} about {{topic}}")
	want := []string{"topic", "audience"}
	if !slices.Equal(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

func TestHas(t *testing.T) {
	tests := []struct {
		template string
		want     bool
	}{
		{"{{x}}", true},
		{"before {{x}} after", true},
		{"no vars here", false},
		{"{{ x }}", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := Has(tc.template); got != tc.want {
			t.Errorf("Has(%q) = %v, want %v", tc.template, got, tc.want)
		}
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]string
		want     string
	}{
		{
			name:     "repeated placeholder gets same value",
			template: "{{x}}-{{x}}",
			values:   map[string]string{"x": "A"},
			want:     "A-A",
		},
		{
			name:     "missing value renders empty",
			template: "Hi {{name}}",
			values:   map[string]string{},
			want:     "Hi ",
		},
		{
			name:     "nil values",
			template: "{{a}}{{b}}",
			values:   nil,
			want:     "",
		},
		{
			name:     "no placeholders unchanged",
			template: "static text {not} {{ spaced }}",
			values:   map[string]string{"not": "x"},
			want:     "static text {not} {{ spaced }}",
		},
		{
			name:     "prefix names do not collide",
			template: "{{a}} {{ab}}",
			values:   map[string]string{"a": "1", "ab": "2"},
			want:     "1 2",
		},
		{
			name:     "values are literal",
			template: "{{a}}",
			values:   map[string]string{"a": "$1 {{b}}", "b": "no"},
			want:     "$1 {{b}}",
		},
		{
			name:     "extra values ignored",
			template: "{{a}}",
			values:   map[string]string{"a": "x", "unused": "y"},
			want:     "x",
		},
		{
			name:     "empty value",
			template: "[{{a}}]",
			values:   map[string]string{"a": ""},
			want:     "[]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.template, tc.values); got != tc.want {
				t.Errorf("Render = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMissing(t *testing.T) {
	got := Missing("{{a}} {{b}} {{c}} {{a}}", map[string]string{"b": ""})
	want := []string{"a", "c"}
	if !slices.Equal(got, want) {
		t.Errorf("Missing = %v, want %v", got, want)
	}

	if got := Missing("no vars", nil); got != nil {
		t.Errorf("Missing = %v, want nil", got)
	}
}

func TestRenderHTML(t *testing.T) {
	got, err := RenderHTML("# {{title}}\n\nHello **{{name}}**", map[string]string{"title": "Greeting", "name": "Ada"})
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	want := "<h1>Greeting</h1>\n<p>Hello <strong>Ada</strong></p>"
	if got != want {
		t.Errorf("RenderHTML = %q, want %q", got, want)
	}
}

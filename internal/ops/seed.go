package ops

import (
	"context"
	"time"

	"github.com/neoprompts/neoprompts/internal/prompt"
	"github.com/neoprompts/neoprompts/internal/storage"
)

// SeedOutput reports what SeedSampleData added.
type SeedOutput struct {
	Seeded      bool `json:"seeded"`
	Collections int  `json:"collections"`
	Prompts     int  `json:"prompts"`
	Tags        int  `json:"tags"`
}

type samplePrompt struct {
	collection  string // key into sampleCollections, "" for uncategorized
	title       string
	template    string
	description string
	tags        []string
	favorite    bool
	copies      int
	lastCopied  time.Duration // age of the last copy, 0 for never copied
	age         time.Duration
}

const fence = "```"

const day = 24 * time.Hour

var sampleTags = []prompt.Tag{
	{Name: "coding", Color: "#007AFF"},
	{Name: "writing", Color: "#34C759"},
	{Name: "creative", Color: "#FF9500"},
	{Name: "business", Color: "#5856D6"},
	{Name: "analysis", Color: "#FF2D55"},
	{Name: "learning", Color: "#00C7BE"},
}

var sampleCollections = []struct {
	key   string
	name  string
	emoji string
}{
	{"code", "Code Assistant", "💻"},
	{"writing", "Writing Help", "✍️"},
	{"creative", "Creative Ideas", "🎨"},
	{"business", "Business", "💼"},
}

var samplePrompts = []samplePrompt{
	{
		collection: "code",
		title:      "Code Review",
		template: "Please review the following {{language}} code and provide feedback on:\n" +
			"1. Code quality and best practices\n2. Potential bugs or issues\n" +
			"3. Performance improvements\n4. Security concerns\n\nCode to review:\n" +
			fence + "{{language}}\n{{code}}\n" + fence,
		description: "Get a comprehensive code review with suggestions",
		tags:        []string{"coding", "analysis"},
		favorite:    true,
		copies:      12,
		lastCopied:  day,
		age:         6 * day,
	},
	{
		collection: "code",
		title:      "Explain Code",
		template: "Explain what this {{language}} code does in simple terms:\n\n" +
			fence + "{{language}}\n{{code}}\n" + fence + "\n\n" +
			"Please include:\n- What the code accomplishes\n- How it works step by step\n- Any important concepts used",
		description: "Get a clear explanation of any code snippet",
		tags:        []string{"coding", "learning"},
		copies:      8,
		lastCopied:  2 * day,
		age:         5 * day,
	},
	{
		collection: "code",
		title:      "Write Unit Tests",
		template: "Write comprehensive unit tests for the following {{language}} code using {{testFramework}}:\n\n" +
			fence + "{{language}}\n{{code}}\n" + fence + "\n\n" +
			"Include tests for:\n- Normal/expected inputs\n- Edge cases\n- Error handling",
		description: "Generate unit tests for your code",
		tags:        []string{"coding"},
		favorite:    true,
		copies:      5,
		age:         4 * day,
	},
	{
		collection: "writing",
		title:      "Blog Post Outline",
		template: `Create a detailed outline for a blog post about "{{topic}}".

Target audience: {{audience}}
Desired length: {{wordCount}} words
Tone: {{tone}}

Include:
- Catchy title options
- Introduction hook
- Main sections with key points
- Conclusion with call-to-action`,
		description: "Generate a structured blog post outline",
		tags:        []string{"writing", "creative"},
		favorite:    true,
		copies:      15,
		lastCopied:  time.Hour,
		age:         3 * day,
	},
	{
		collection: "writing",
		title:      "Email Composer",
		template: `Write a professional email with the following details:

Purpose: {{purpose}}
Recipient: {{recipient}}
Key points to include: {{keyPoints}}
Tone: {{tone}}

Make it concise and clear.`,
		description: "Compose professional emails quickly",
		tags:        []string{"writing", "business"},
		copies:      20,
		lastCopied:  2 * time.Hour,
		age:         2 * day,
	},
	{
		collection: "writing",
		title:      "Proofread & Edit",
		template: `Please proofread and edit the following text for:
- Grammar and spelling errors
- Clarity and readability
- Tone consistency
- Flow and structure

Text to edit:
"""
{{text}}
"""

Provide the corrected version and list the changes made.`,
		description: "Get your text proofread and improved",
		tags:        []string{"writing"},
		copies:      7,
		age:         day,
	},
	{
		collection: "creative",
		title:      "Story Starter",
		template: `Generate a creative story opening based on:

Genre: {{genre}}
Setting: {{setting}}
Main character: {{character}}
Mood: {{mood}}

Write 2-3 paragraphs that hook the reader and establish the scene.`,
		description: "Get creative story beginnings",
		tags:        []string{"creative", "writing"},
		favorite:    true,
		copies:      3,
		lastCopied:  3 * day,
		age:         6 * day,
	},
	{
		collection: "creative",
		title:      "Brainstorm Ideas",
		template: `Generate 10 creative ideas for: {{topic}}

Context: {{context}}
Constraints: {{constraints}}

For each idea, provide:
- Brief description
- Why it could work
- Potential challenges`,
		description: "Brainstorm creative solutions and ideas",
		tags:        []string{"creative", "analysis"},
		copies:      11,
		lastCopied:  12 * time.Hour,
		age:         5 * day,
	},
	{
		collection: "business",
		title:      "Meeting Summary",
		template: `Summarize the following meeting notes into a clear, actionable format:

Meeting Notes:
"""
{{notes}}
"""

Include:
- Key decisions made
- Action items with owners
- Next steps and deadlines
- Open questions`,
		description: "Turn messy notes into clear summaries",
		tags:        []string{"business"},
		favorite:    true,
		copies:      25,
		lastCopied:  30 * time.Minute,
		age:         4 * day,
	},
	{
		collection: "business",
		title:      "SWOT Analysis",
		template: `Perform a SWOT analysis for: {{subject}}

Context: {{context}}
Industry: {{industry}}

Provide a detailed analysis of:
- Strengths (internal positives)
- Weaknesses (internal negatives)
- Opportunities (external positives)
- Threats (external negatives)

Include recommendations based on the analysis.`,
		description: "Generate comprehensive SWOT analysis",
		tags:        []string{"business", "analysis"},
		copies:      6,
		age:         3 * day,
	},
	{
		title:       "Explain Like I'm 5",
		template:    `Explain "{{topic}}" in simple terms that a 5-year-old could understand. Use analogies and examples from everyday life.`,
		description: "Simplify complex topics",
		tags:        []string{"learning"},
		favorite:    true,
		copies:      30,
		lastCopied:  10 * time.Minute,
		age:         7 * day,
	},
	{
		title: "Quick Translation",
		template: `Translate the following text from {{sourceLanguage}} to {{targetLanguage}}:

"""
{{text}}
"""

Maintain the original tone and meaning.`,
		description: "Quick language translation",
		tags:        []string{"writing"},
		copies:      18,
		lastCopied:  4 * time.Hour,
		age:         2 * day,
	},
}

// SeedSampleData fills an empty library with a starter set of tags,
// collections and prompts, in that order. A store holding any collection,
// prompt or tag is left untouched and Seeded is false.
func SeedSampleData(ctx context.Context, store storage.Adapter) (*SeedOutput, error) {
	empty, err := libraryEmpty(ctx, store)
	if err != nil {
		return nil, err
	}
	out := &SeedOutput{}
	if !empty {
		return out, nil
	}

	for _, t := range sampleTags {
		if _, err := store.AddTag(ctx, t); err != nil {
			return nil, err
		}
		out.Tags++
	}

	ids := make(map[string]string, len(sampleCollections))
	for i, c := range sampleCollections {
		added, err := store.AddCollection(ctx, prompt.Collection{Name: c.name, Emoji: c.emoji, Order: i})
		if err != nil {
			return nil, err
		}
		ids[c.key] = added.ID
		out.Collections++
	}

	now := prompt.Now()
	for _, s := range samplePrompts {
		p := prompt.Prompt{
			Title:       s.title,
			Template:    s.template,
			Description: s.description,
			Tags:        s.tags,
			IsFavorite:  s.favorite,
			CopyCount:   s.copies,
			CreatedAt:   now.Add(-s.age),
			UpdatedAt:   now,
		}
		if s.collection != "" {
			id := ids[s.collection]
			p.CollectionID = &id
		}
		if s.lastCopied > 0 {
			at := now.Add(-s.lastCopied)
			p.LastCopiedAt = &at
		}
		if _, err := store.AddPrompt(ctx, p); err != nil {
			return nil, err
		}
		out.Prompts++
	}

	out.Seeded = true
	return out, nil
}

func libraryEmpty(ctx context.Context, store storage.Adapter) (bool, error) {
	tags, err := store.ListTags(ctx)
	if err != nil {
		return false, err
	}
	collections, err := store.ListCollections(ctx)
	if err != nil {
		return false, err
	}
	prompts, err := store.ListPrompts(ctx)
	if err != nil {
		return false, err
	}
	return len(tags) == 0 && len(collections) == 0 && len(prompts) == 0, nil
}

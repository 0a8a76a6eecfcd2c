package filter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aegis-bot/warden/automod/behavior"
	"github.com/aegis-bot/warden/automod/config"

	"github.com/stretchr/testify/assert"
)

func enabledConfig() *config.GuildConfig {
	c := config.Default()
	c.Enabled = true
	c.Filters.Links.Enabled = true
	return c
}

func TestProfanity(t *testing.T) {
	assert := assert.New(t)

	cfg := enabledConfig()
	cfg.Filters.Profanity.CustomWords = []string{"Frack"}

	triggered := []string{
		"oh shit",
		"DAMN!!",
		"you b-i-t-c-h",
		"d4mn it",
		"5hit happens",
		"b4stard",
		"frack this",
		"Dámn",
	}
	for _, text := range triggered {
		v, err := CheckProfanity(&Message{Content: text}, cfg)
		assert.NoError(err)
		assert.True(v.Triggered, text)
	}

	clean := []string{
		"",
		"hello there",
		"classic assessment",
		"shitake is not a word here",
		"1337",
	}
	for _, text := range clean {
		v, err := CheckProfanity(&Message{Content: text}, cfg)
		assert.NoError(err)
		assert.False(v.Triggered, text)
	}
}

func TestCaps(t *testing.T) {
	assert := assert.New(t)

	cfg := enabledConfig()
	cfg.Filters.Caps.MaxPercentage = 70
	cfg.Filters.Caps.MinLength = 6

	v, err := CheckCaps(&Message{Content: "HELLO!!"}, cfg)
	assert.NoError(err)
	assert.True(v.Triggered)

	// too short, regardless of case
	v, _ = CheckCaps(&Message{Content: "Hi"}, cfg)
	assert.False(v.Triggered)
	v, _ = CheckCaps(&Message{Content: "HEY"}, cfg)
	assert.False(v.Triggered)

	v, _ = CheckCaps(&Message{Content: "Hello there, Friend"}, cfg)
	assert.False(v.Triggered)

	assert.InDelta(50.0, CapsPercentage("ABcd"), 0.001)
	assert.Equal(0.0, CapsPercentage(""))
}

func TestLinks(t *testing.T) {
	assert := assert.New(t)

	cfg := enabledConfig()
	cfg.Filters.Links.Whitelist = []string{"example.com"}

	cases := []struct {
		text      string
		triggered bool
		detail    string
	}{
		{"see https://example.com/page", false, ""},
		{"see https://docs.example.com/page", false, ""},
		{"see https://WWW.Example.com", false, ""},
		{"see https://evil.com/page", true, "url"},
		{"see https://notexample.com", true, "url"},
		{"join discord.gg/abc123", true, "invite"},
		{"join https://discord.com/invite/abc", true, "invite"},
		{"no links here", false, ""},
	}
	for _, c := range cases {
		v, err := CheckLinks(&Message{Content: c.text}, cfg)
		assert.NoError(err)
		assert.Equal(c.triggered, v.Triggered, c.text)
		assert.Equal(c.detail, v.Detail, c.text)
	}

	cfg.Filters.Links.BlockInvites = false
	v, _ := CheckLinks(&Message{Content: "join discord.gg/abc123"}, cfg)
	assert.False(v.Triggered)
}

func TestMentions(t *testing.T) {
	assert := assert.New(t)

	cfg := enabledConfig()
	cfg.Filters.Mentions.MaxMentions = 2
	cfg.Filters.Mentions.MaxRoleMentions = 1

	v, _ := CheckMentions(&Message{Content: "<@1> <@!2>"}, cfg)
	assert.False(v.Triggered)

	v, _ = CheckMentions(&Message{Content: "<@1> <@!2> <@3>"}, cfg)
	assert.True(v.Triggered)
	assert.Equal("users", v.Detail)

	// repeats of the same user count once
	v, _ = CheckMentions(&Message{Content: "<@1> <@1> <@!1> <@1>"}, cfg)
	assert.False(v.Triggered)

	v, _ = CheckMentions(&Message{Content: "<@&10> <@&11>"}, cfg)
	assert.True(v.Triggered)
	assert.Equal("roles", v.Detail)

	// platform-resolved mentions take precedence over content parsing
	v, _ = CheckMentions(&Message{Content: "hi all", MentionedUsers: []string{"1", "2", "3"}}, cfg)
	assert.True(v.Triggered)
}

func TestZalgo(t *testing.T) {
	assert := assert.New(t)

	cfg := enabledConfig()
	cfg.Filters.Zalgo.Threshold = 0.5

	zalgo := "h\u0300\u0301\u0302e\u0303\u0304\u0305"
	v, _ := CheckZalgo(&Message{Content: zalgo}, cfg)
	assert.True(v.Triggered)

	v, _ = CheckZalgo(&Message{Content: "café"}, cfg)
	assert.False(v.Triggered)
	v, _ = CheckZalgo(&Message{Content: ""}, cfg)
	assert.False(v.Triggered)
	assert.InDelta(0.75, ZalgoRatio("a\u0300\u0301\u0302"), 0.001)
}

func TestSpamVerdict(t *testing.T) {
	assert := assert.New(t)

	cfg := enabledConfig()
	v, _ := CheckSpam(&Message{Content: "x"}, cfg)
	assert.False(v.Triggered)

	v, _ = CheckSpam(&Message{Content: "x", Behavior: &behavior.Observation{Count: 6, Duplicates: 1}}, cfg)
	assert.True(v.Triggered)
	assert.Equal(behavior.DetailRate, v.Detail)

	v, _ = CheckSpam(&Message{Content: "x", Behavior: &behavior.Observation{Count: 4, Duplicates: 4}}, cfg)
	assert.True(v.Triggered)
	assert.Equal(behavior.DetailDuplicate, v.Detail)
}

func TestSetOrderAndPrimary(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cfg := enabledConfig()
	msg := &Message{
		Content:  "DAMN LOOK AT HTTPS://EVIL.COM NOW",
		Behavior: &behavior.Observation{Count: 10, Duplicates: 1},
	}
	res := DefaultSet().Evaluate(ctx, msg, cfg)
	assert.Empty(res.Errors)
	assert.Equal([]Kind{KindProfanity, KindSpam, KindLinks, KindCaps}, res.Kinds())
	assert.Equal(KindProfanity, res.Primary())

	// disabled filters are not evaluated at all
	cfg.Filters.Profanity.Enabled = false
	cfg.Filters.Spam.Enabled = false
	res = DefaultSet().Evaluate(ctx, msg, cfg)
	assert.Equal(KindLinks, res.Primary())
	for _, v := range res.Verdicts {
		assert.NotEqual(KindProfanity, v.Kind)
	}

	clean := DefaultSet().Evaluate(ctx, &Message{Content: "hello friends"}, cfg)
	assert.Empty(clean.Triggered())
	assert.Equal(Kind(""), clean.Primary())
}

func TestSetIsolatesFailures(t *testing.T) {
	assert := assert.New(t)

	set := NewSet(map[Kind]Func{
		KindProfanity: func(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
			panic("boom")
		},
		KindCaps: func(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
			return Verdict{Triggered: true}, errors.New("broken")
		},
		KindZalgo: CheckZalgo,
		KindMentions: func(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
			return Verdict{Triggered: strings.Contains(msg.Content, "@")}, nil
		},
	})
	res := set.Evaluate(context.Background(), &Message{Content: "@someone"}, enabledConfig())
	assert.Len(res.Errors, 2)
	for _, err := range res.Errors {
		assert.ErrorIs(err, ErrFilterEvaluation)
	}
	// failing filters count as not triggered
	assert.Equal([]Kind{KindMentions}, res.Kinds())
}

func TestFiltersArePure(t *testing.T) {
	assert := assert.New(t)

	cfg := enabledConfig()
	msg := &Message{Content: "CHECK https://evil.com <@1> <@2> d4mn", Behavior: &behavior.Observation{Count: 1, Duplicates: 1}}
	first := DefaultSet().Evaluate(context.Background(), msg, cfg)
	for i := 0; i < 10; i++ {
		again := DefaultSet().Evaluate(context.Background(), msg, cfg)
		assert.Equal(first, again)
	}
	assert.Equal(enabledConfig(), cfg)
}

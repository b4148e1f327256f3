package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDecodeBasic() {
	input := `
[core]
	repositoryformatversion = 0
	bare = false
[remote "origin"]
	url = https://example.com/repo.git
	fetch = +refs/heads/*:refs/remotes/origin/*
`
	cfg := New()
	require.NoError(s.T(), NewDecoder(strings.NewReader(input)).Decode(cfg))

	s.Equal("0", cfg.GetOption("core", NoSubsection, "repositoryformatversion"))
	s.Equal("false", cfg.GetOption("core", NoSubsection, "bare"))
	s.Equal("https://example.com/repo.git", cfg.GetOption("remote", "origin", "url"))
}

func (s *ConfigSuite) TestDecodeComments() {
	input := "[core]\n\t; a comment\n\tbare = true # trailing\n"
	cfg := New()
	require.NoError(s.T(), NewDecoder(strings.NewReader(input)).Decode(cfg))
	s.Equal("true", cfg.GetOption("core", NoSubsection, "bare"))
}

func (s *ConfigSuite) TestDecodeQuotedValue() {
	input := "[core]\n\teditor = \"vi -c 'set nu'\"\n"
	cfg := New()
	require.NoError(s.T(), NewDecoder(strings.NewReader(input)).Decode(cfg))
	s.Equal("vi -c 'set nu'", cfg.GetOption("core", NoSubsection, "editor"))
}

func (s *ConfigSuite) TestEncodeDecodeRoundTrip() {
	cfg := New()
	cfg.AddOption("core", NoSubsection, "bare", "false")
	cfg.AddOption("remote", "origin", "url", "https://example.com/repo.git")

	var buf bytes.Buffer
	require.NoError(s.T(), NewEncoder(&buf).Encode(cfg))

	got := New()
	require.NoError(s.T(), NewDecoder(&buf).Decode(got))
	s.Equal("false", got.GetOption("core", NoSubsection, "bare"))
	s.Equal("https://example.com/repo.git", got.GetOption("remote", "origin", "url"))
}

func (s *ConfigSuite) TestLastOneWins() {
	cfg := New()
	cfg.AddOption("user", NoSubsection, "name", "first")
	cfg.AddOption("user", NoSubsection, "name", "second")
	s.Equal("second", cfg.GetOption("user", NoSubsection, "name"))
	s.Equal([]string{"first", "second"}, cfg.GetAllOptions("user", NoSubsection, "name"))
}

func (s *ConfigSuite) TestSubsectionCaseSensitive() {
	sect := &Section{}
	sub1 := sect.Subsection("Origin")
	sub1.AddOption("url", "a")
	s.False(sect.HasSubsection("origin"))
	s.True(sect.HasSubsection("Origin"))
}

func TestScopedMergePrecedence(t *testing.T) {
	scoped := NewScoped()

	system := New()
	system.AddOption("user", NoSubsection, "name", "system-user")
	scoped.Set(SystemScope, system)

	local := New()
	local.AddOption("user", NoSubsection, "name", "local-user")
	scoped.Set(LocalScope, local)

	merged, err := scoped.Merge()
	require.NoError(t, err)
	assert.Equal(t, "local-user", merged.GetOption("user", NoSubsection, "name"))
}

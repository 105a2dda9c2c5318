package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// UserIDRegex validates user ID format
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// SkillRegex validates a normalized skill name
	SkillRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9 _-]*$`)
)

// ValidateUserID validates a user identifier
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(userID) > 64 {
		return fmt.Errorf("user ID is too long (max 64 characters)")
	}
	if !UserIDRegex.MatchString(userID) {
		return fmt.Errorf("user ID may only contain letters, digits, '_' and '-'")
	}
	return nil
}

// ValidateSkill validates a single normalized skill name
func ValidateSkill(skill string) error {
	if skill == "" {
		return fmt.Errorf("skill is required")
	}
	if utf8.RuneCountInString(skill) > 64 {
		return fmt.Errorf("skill is too long (max 64 characters)")
	}
	if !SkillRegex.MatchString(skill) {
		return fmt.Errorf("invalid skill %q", skill)
	}
	return nil
}

// ValidateSkills validates a normalized skill list against a size limit
func ValidateSkills(skills []string, maxSkills int) error {
	if len(skills) == 0 {
		return fmt.Errorf("at least one skill is required")
	}
	if maxSkills > 0 && len(skills) > maxSkills {
		return fmt.Errorf("too many skills (max %d)", maxSkills)
	}
	for _, s := range skills {
		if err := ValidateSkill(s); err != nil {
			return err
		}
	}
	return nil
}

// ValidateUsername validates a login username
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !UserIDRegex.MatchString(username) {
		return fmt.Errorf("username may only contain letters, digits, '_' and '-'")
	}
	return nil
}

// ValidatePassword validates a login password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if utf8.RuneCountInString(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	return nil
}

package model

import (
	"strings"
	"time"
)

// nothingFoundTopics are topic values that mean the media scan found no
// negative coverage for the company.
var nothingFoundTopics = map[string]bool{
	"NOTHING NEGATIVE":  true,
	"NO RELEVANT MEDIA": true,
	"NOTHING FOUND":     true,
	"NONE":              true,
	"N/A":               true,
}

// DisqualificationRecord is a media-scan note about negative public
// information for a company. CompanyName is matched approximately.
type DisqualificationRecord struct {
	CompanyName string    `json:"company_name"`
	Topic       string    `json:"topic"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NothingFound reports whether the topic is a "no findings" sentinel.
func (d DisqualificationRecord) NothingFound() bool {
	t := strings.ToUpper(strings.TrimSpace(d.Topic))
	t = strings.TrimRight(t, ".")
	return t == "" || nothingFoundTopics[t]
}

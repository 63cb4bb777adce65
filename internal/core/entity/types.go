package entity

// UserRef is a site user as seen through a User column.
type UserRef struct {
	ItemBase

	Claims      string `json:"Name"`
	JobTitle    string `json:"JobTitle"`
	Department  string `json:"Department"`
	MobilePhone string `json:"MobilePhone"`
	Picture     string `json:"-"`
}

// RecordReadOnly implements ReadOnlyRecord: users are never deleted through a list.
func (u *UserRef) RecordReadOnly() bool { return true }

// UserFull is a site user with all user information list columns.
type UserFull struct {
	UserRef

	EMail          string `json:"EMail"`
	OtherMail      string `json:"OtherMail"`
	UserName       string `json:"UserName"`
	UserInfoHidden bool   `json:"UserInfoHidden"`
	ImnName        string `json:"ImnName"`
}

// MetaTerm is a managed-metadata (taxonomy) value.
type MetaTerm struct {
	Label    string `json:"Label"`
	TermGUID string `json:"TermGuid"`
	WssID    int    `json:"WssId"`
}

// TaxCatchAll is an entry of the hidden taxonomy list referenced by the
// TaxCatchAll column; single taxonomy values index into it.
type TaxCatchAll struct {
	Record

	Term string `json:"Term"`
}

// TaxCatchAllFull exposes all columns of the hidden taxonomy list.
type TaxCatchAllFull struct {
	TaxCatchAll

	Title          string `json:"Title"`
	IDForTermStore string `json:"IdForTermStore"`
	IDForTermSet   string `json:"IdForTermSet"`
	IDForTerm      string `json:"IdForTerm"`
	Path           string `json:"Path"`
}

// TaxCatchAllHolder is implemented by entities exposing the catch-all collection.
type TaxCatchAllHolder interface {
	CatchAll() (terms []*TaxCatchAll, present bool)
}

// ThumbnailRenderer is part of the image column value.
type ThumbnailRenderer struct {
	SpItemURL    string `json:"spItemUrl"`
	FileVersion  int    `json:"fileVersion"`
	SponsorToken string `json:"sponsorToken"`
}

// Image is the parsed value of an image column (delivered as a JSON string).
type Image struct {
	FileName          string             `json:"fileName"`
	ServerRelativeURL string             `json:"serverRelativeUrl"`
	ServerURL         string             `json:"serverUrl"`
	ID                string             `json:"id,omitempty"`
	Type              string             `json:"type"`
	FieldName         string             `json:"fieldName"`
	ThumbnailRenderer *ThumbnailRenderer `json:"thumbnailRenderer,omitempty"`
}

// URL returns the absolute URL of the image.
func (i *Image) URL() string {
	return i.ServerURL + i.ServerRelativeURL
}

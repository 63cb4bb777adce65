package entity

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ListItem carries the standard columns of a list item: audit users and
// dates, attachments flag, enterprise keywords, taxonomy catch-all and the
// rating/like aggregates. Aggregates are read-only; the rating and like
// endpoints are outside this layer.
type ListItem struct {
	ItemBase

	Author   Lookup[*UserRef] `json:"Author" list:"readonly"`
	Created  string           `json:"Created" list:"readonly"`
	Editor   Lookup[*UserRef] `json:"Editor" list:"readonly"`
	Modified string           `json:"Modified" list:"readonly"`

	HasAttachments bool   `json:"Attachments"`
	ContentTypeID  string `json:"ContentTypeId"`

	TaxKeyword  []MetaTerm           `json:"TaxKeyword"`
	TaxCatchAll Lookup[*TaxCatchAll] `json:"TaxCatchAll"`

	AverageRating decimal.Decimal  `json:"AverageRating" list:"readonly"`
	RatingCount   int              `json:"RatingCount" list:"readonly"`
	RatedBy       Lookup[*UserRef] `json:"RatedBy" list:"readonly"`
	Ratings       string           `json:"Ratings" list:"readonly"`
	LikesCount    int              `json:"LikesCount" list:"readonly"`
	LikedBy       Lookup[*UserRef] `json:"LikedBy" list:"readonly"`
}

// Init implements Initializer.
func (li *ListItem) Init() {
	li.TaxKeyword = []MetaTerm{}
	li.TaxCatchAll.SetMulti(true)
	li.RatedBy.SetMulti(true)
	li.LikedBy.SetMulti(true)
}

// CatchAll implements TaxCatchAllHolder.
func (li *ListItem) CatchAll() ([]*TaxCatchAll, bool) {
	if li.TaxCatchAll.State() != Loaded {
		return nil, false
	}
	return li.TaxCatchAll.All(), true
}

// IsLikedByMe reports whether userID is among the likers.
func (li *ListItem) IsLikedByMe(userID int) bool {
	return li.LikedBy.Contains(userID)
}

// IsRatedByMe reports whether userID has rated the item.
func (li *ListItem) IsRatedByMe(userID int) bool {
	return li.RatedBy.Contains(userID)
}

// MyRating returns the rating given by userID. Ratings is a comma separated
// list aligned with RatedBy.
func (li *ListItem) MyRating(userID int) (int, bool) {
	idx := li.RatedBy.IndexOf(userID)
	if idx < 0 {
		return 0, false
	}
	ratings := strings.Split(li.Ratings, ",")
	if idx >= len(ratings) {
		return 0, false
	}
	rating, err := strconv.Atoi(strings.TrimSpace(ratings[idx]))
	if err != nil {
		return 0, false
	}
	return rating, true
}

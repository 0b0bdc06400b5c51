package instagram

import (
	"encoding/json"

	"github.com/samber/mo"
)

// Profile is the graphql user object embedded in a profile page
type Profile struct {
	ID                       string                   `json:"id"`
	Username                 string                   `json:"username"`
	FullName                 string                   `json:"full_name"`
	Biography                string                   `json:"biography"`
	ExternalURL              string                   `json:"external_url"`
	ProfilePicURL            string                   `json:"profile_pic_url"`
	ProfilePicURLHD          string                   `json:"profile_pic_url_hd"`
	IsPrivate                bool                     `json:"is_private"`
	IsVerified               bool                     `json:"is_verified"`
	EdgeFollowedBy           Count                    `json:"edge_followed_by"`
	EdgeFollow               Count                    `json:"edge_follow"`
	EdgeOwnerToTimelineMedia EdgeOwnerToTimelineMedia `json:"edge_owner_to_timeline_media"`

	Raw json.RawMessage `json:"-"`
}

// Count wraps the counters graphql returns as {"count": n}
type Count struct {
	Count int `json:"count"`
}

// EdgeOwnerToTimelineMedia contains one page of media
type EdgeOwnerToTimelineMedia struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []Edge   `json:"edges"`
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

// Edge wraps a single media node
type Edge struct {
	Node Node `json:"node"`
}

// Node represents a single media item (photo or video)
type Node struct {
	ID               string `json:"id"`
	Shortcode        string `json:"shortcode"`
	DisplayURL       string `json:"display_url"`
	ThumbnailSrc     string `json:"thumbnail_src"`
	IsVideo          bool   `json:"is_video"`
	TakenAtTimestamp int64  `json:"taken_at_timestamp"`
}

// UserInfo is the user object of the private JSON API
type UserInfo struct {
	PK             json.Number `json:"pk"`
	Username       string      `json:"username"`
	FullName       string      `json:"full_name"`
	Biography      string      `json:"biography"`
	ExternalURL    string      `json:"external_url"`
	ProfilePicURL  string      `json:"profile_pic_url"`
	IsPrivate      bool        `json:"is_private"`
	IsVerified     bool        `json:"is_verified"`
	IsBusiness     bool        `json:"is_business"`
	FollowerCount  int         `json:"follower_count"`
	FollowingCount int         `json:"following_count"`
	MediaCount     int         `json:"media_count"`

	Raw json.RawMessage `json:"-"`
}

// ReelsPage is one page of a user's clips
type ReelsPage struct {
	Items      []ReelItem `json:"items"`
	PagingInfo PagingInfo `json:"paging_info"`
	Status     string     `json:"status"`

	Raw json.RawMessage `json:"-"`
}

// PagingInfo is the cursor block of the private API
type PagingInfo struct {
	MaxID         string `json:"max_id"`
	MoreAvailable bool   `json:"more_available"`
}

// ReelItem wraps one clip
type ReelItem struct {
	Media ReelMedia `json:"media"`
}

// ReelMedia describes a clip
type ReelMedia struct {
	ID           string   `json:"id"`
	Code         string   `json:"code"`
	TakenAt      int64    `json:"taken_at"`
	PlayCount    int      `json:"play_count"`
	LikeCount    int      `json:"like_count"`
	CommentCount int      `json:"comment_count"`
	Caption      *Caption `json:"caption"`
}

// Caption is the text attached to a media item
type Caption struct {
	Text string `json:"text"`
}

// NextCursor returns the max_id to request the following page, if there is one
func (p *ReelsPage) NextCursor() mo.Option[string] {
	if !p.PagingInfo.MoreAvailable || p.PagingInfo.MaxID == "" {
		return mo.None[string]()
	}
	return mo.Some(p.PagingInfo.MaxID)
}

// LiveStream is the broadcast status of a user
type LiveStream struct {
	ID               json.Number     `json:"id"`
	BroadcastStatus  string          `json:"broadcast_status"`
	DashPlaybackURL  string          `json:"dash_playback_url"`
	DashABRURL       string          `json:"dash_abr_playback_url"`
	ViewerCount      float64         `json:"viewer_count"`
	PublishedTime    int64           `json:"published_time"`
	CoverFrameURL    string          `json:"cover_frame_url"`
	BroadcastMessage string          `json:"broadcast_message"`
	Owner            json.RawMessage `json:"broadcast_owner,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Location is the graphql location object
type Location struct {
	ID                     string                   `json:"id"`
	Name                   string                   `json:"name"`
	Slug                   string                   `json:"slug"`
	Lat                    float64                  `json:"lat"`
	Lng                    float64                  `json:"lng"`
	HasPublicPage          bool                     `json:"has_public_page"`
	EdgeLocationToMedia    EdgeOwnerToTimelineMedia `json:"edge_location_to_media"`
	EdgeLocationToTopPosts EdgeOwnerToTimelineMedia `json:"edge_location_to_top_posts"`
}

// LocationPage is one page of a location's media with the cursor of the next one
type LocationPage struct {
	Location  Location `json:"location"`
	EndCursor string   `json:"end_cursor"`
	HasNext   bool     `json:"has_next"`

	Raw json.RawMessage `json:"-"`
}

// NextCursor returns the cursor for LocationMore, if there is a next page
func (p *LocationPage) NextCursor() mo.Option[string] {
	if !p.HasNext || p.EndCursor == "" {
		return mo.None[string]()
	}
	return mo.Some(p.EndCursor)
}

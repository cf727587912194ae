package model

import "encoding/json"

// PostFrom は投稿者情報。
type PostFrom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PostShares はシェア数。
type PostShares struct {
	Count int `json:"count"`
}

// Post はGraph APIの投稿レコード。要求するフィールドに合わせて定義する。
type Post struct {
	ID           string      `json:"id"`
	Message      string      `json:"message,omitempty"`
	Story        string      `json:"story,omitempty"`
	CreatedTime  string      `json:"created_time,omitempty"`
	PermalinkURL string      `json:"permalink_url,omitempty"`
	FullPicture  string      `json:"full_picture,omitempty"`
	From         *PostFrom   `json:"from,omitempty"`
	Shares       *PostShares `json:"shares,omitempty"`
	StatusType   string      `json:"status_type,omitempty"`
	Type         string      `json:"type,omitempty"`
}

// CommentFrom はコメント投稿者情報。pictureはGraph APIの形式のまま保持する。
type CommentFrom struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Picture json.RawMessage `json:"picture,omitempty"`
}

// CommentAttachment はコメントの添付。
type CommentAttachment struct {
	Type  string          `json:"type,omitempty"`
	URL   string          `json:"url,omitempty"`
	Media json.RawMessage `json:"media,omitempty"`
}

// Comment はGraph APIのコメントレコード。
type Comment struct {
	ID          string             `json:"id"`
	Message     string             `json:"message,omitempty"`
	CreatedTime string             `json:"created_time,omitempty"`
	From        *CommentFrom       `json:"from,omitempty"`
	Attachment  *CommentAttachment `json:"attachment,omitempty"`
}

// Paging はGraph APIのページング情報。
type Paging struct {
	Cursors *PagingCursors `json:"cursors,omitempty"`
	Next    string         `json:"next,omitempty"`
	Prev    string         `json:"previous,omitempty"`
}

// PagingCursors はカーソル情報。
type PagingCursors struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// PostPage は投稿一覧の1ページ分を表す。
// カーソルは生成したコレクションとクレデンシャルに対してのみ有効。
type PostPage struct {
	Data        []Post `json:"data"`
	Paging      Paging `json:"paging"`
	HasNextPage bool   `json:"has_next_page"`
	NextCursor  string `json:"next_cursor,omitempty"`
}

// CommentList はコメント取得結果を表す。
// Truncatedは2ページ目以降の取得に失敗し、途中までの結果であることを示す。
type CommentList struct {
	Comments  []Comment
	Truncated bool
}

package com

import "github.com/rs/xid"

// Uid is a sortable globally unique connection identifier.
type Uid struct {
	xid.ID
}

func NewUid() Uid { return Uid{xid.New()} }

// Short is the abbreviated log form of the id.
func (u Uid) Short() string { return u.String()[:3] + "." + u.String()[len(u.String())-3:] }

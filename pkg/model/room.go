package model

import "time"

type Room struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name      string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Floor     int       `json:"floor" bson:"floor" validate:"min=-20,max=300"`
	Capacity  int       `json:"capacity" bson:"capacity" validate:"required,min=1,max=1000"`
	Features  []string  `json:"features" bson:"features" validate:"omitempty,max=50,dive,min=1,max=50"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

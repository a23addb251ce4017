// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

type boardResponse struct {
	Assignments []datatypes.Assignment `json:"assignments"`
}

// GetBoard returns the assignments for one calendar date.
func GetBoard(store *BoardStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := time.Parse("2006-01-02", c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "date must be formatted as YYYY-MM-DD"})
			return
		}

		assignments := store.ForDate(date)
		if assignments == nil {
			assignments = []datatypes.Assignment{}
		}
		c.JSON(http.StatusOK, boardResponse{Assignments: assignments})
	}
}

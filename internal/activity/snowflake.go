package activity

import (
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

// SnowflakeTime decodes the creation time embedded in a platform identifier.
func SnowflakeTime(id int64) (time.Time, error) {
	t, err := discordgo.SnowflakeTimestamp(strconv.FormatInt(id, 10))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

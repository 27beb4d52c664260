package riot

import "github.com/goccy/go-json"

// Upstream payloads are parsed at this boundary only. Optional fields stay
// pointers so a missing or mistyped value becomes nil instead of a zero
// that looks like data.

type Account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

type Summoner struct {
	ID            string `json:"id"`
	PUUID         string `json:"puuid"`
	ProfileIconID *int   `json:"profileIconId"`
	SummonerLevel *int64 `json:"summonerLevel"`
}

type LeagueEntry struct {
	QueueType    string  `json:"queueType"`
	Tier         *string `json:"tier"`
	Rank         *string `json:"rank"`
	LeaguePoints *int    `json:"leaguePoints"`
	Wins         *int    `json:"wins"`
	Losses       *int    `json:"losses"`
}

// MatchIDsQuery narrows the paginated match-id listing. Zero StartTime or
// EndTime means the bound is not sent.
type MatchIDsQuery struct {
	Start     int
	Count     int
	StartTime int64 // unix seconds, inclusive lower bound
	EndTime   int64 // unix seconds, exclusive upper bound
}

// MatchPayload keeps the full raw body (persisted as the source of truth)
// alongside the few fields the pipeline derives from it.
type MatchPayload struct {
	Raw  []byte
	Info MatchInfo
}

type MatchInfo struct {
	GameStartTimestamp *int64               `json:"gameStartTimestamp"` // ms
	GameDuration       *int                 `json:"gameDuration"`       // s
	QueueID            *int                 `json:"queueId"`
	PlatformID         *string              `json:"platformId"`
	Participants       []ParticipantPayload `json:"participants"`
}

// ParseMatchPayload decodes a stored raw match body. Used when rebuilding
// derived rows from a payload already on disk, without touching upstream.
func ParseMatchPayload(raw []byte) (*MatchPayload, error) {
	var parsed struct {
		Info MatchInfo `json:"info"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return &MatchPayload{Raw: raw, Info: parsed.Info}, nil
}

type ParticipantPayload struct {
	PUUID          *string `json:"puuid"`
	TeamID         *int    `json:"teamId"`
	Win            *bool   `json:"win"`
	SummonerName   *string `json:"summonerName"`
	RiotIDGameName *string `json:"riotIdGameName"`
	RiotIDTagline  *string `json:"riotIdTagline"`
	ChampionName   *string `json:"championName"`
	Lane           *string `json:"lane"`
	Role           *string `json:"role"`

	Kills                       *int `json:"kills"`
	Deaths                      *int `json:"deaths"`
	Assists                     *int `json:"assists"`
	GoldEarned                  *int `json:"goldEarned"`
	TotalDamageDealtToChampions *int `json:"totalDamageDealtToChampions"`
	VisionScore                 *int `json:"visionScore"`
	TotalMinionsKilled          *int `json:"totalMinionsKilled"`
	NeutralMinionsKilled        *int `json:"neutralMinionsKilled"`
}

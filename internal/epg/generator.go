// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epg renders the persisted program guide as XMLTV.
package epg

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Generator is written into generator-info-name.
const Generator = "eitcorr"

type TV struct {
	XMLName   xml.Name    `xml:"tv"`
	Generator string      `xml:"generator-info-name,attr,omitempty"`
	Channels  []Channel   `xml:"channel"`
	Programs  []Programme `xml:"programme"`
}

type Channel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
}

type Programme struct {
	Start     string     `xml:"start,attr"`
	Stop      string     `xml:"stop,attr"`
	Channel   string     `xml:"channel,attr"`
	Title     Title      `xml:"title"`
	SubTitle  *Title     `xml:"sub-title,omitempty"`
	Desc      string     `xml:"desc,omitempty"`
	Category  []Title    `xml:"category,omitempty"`
	Video     *Video     `xml:"video,omitempty"`
	Audio     *Audio     `xml:"audio,omitempty"`
	Subtitles []Subtitle `xml:"subtitles,omitempty"`
}

type Title struct {
	// Lang contains the language code for the title (optional).
	Lang string `xml:"lang,attr,omitempty"`
	// Text is the character data of the element.
	Text string `xml:",chardata"`
}

type Video struct {
	Quality string `xml:"quality"`
}

type Audio struct {
	Stereo string `xml:"stereo"`
}

type Subtitle struct {
	Type string `xml:"type,attr"`
}

// GenerateXMLTV builds the document root.
func GenerateXMLTV(channels []Channel, programmes []Programme) TV {
	if programmes == nil {
		programmes = []Programme{}
	}
	return TV{
		Generator: Generator,
		Channels:  channels,
		Programs:  programmes,
	}
}

// EncodeXMLTV writes tv with an XML header to w.
func EncodeXMLTV(w io.Writer, tv TV) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return fmt.Errorf("encode xmltv: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

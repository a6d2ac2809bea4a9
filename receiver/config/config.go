/*
NAME
  config.go

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for the receiver.
package config

import (
	"github.com/ausocean/utils/logging"
)

// Enums to define inputs and outputs.
const (
	// Indicates no option has been set.
	NothingDefined = iota

	// Inputs.
	InputUDP
	InputFile
	InputManual

	// Outputs.
	OutputFile
	OutputFiles
	OutputRecords
	OutputMTS
)

// Config provides parameters relevant to a receiver instance. A new config
// must be passed to the constructor. Default values for these fields are
// defined as consts in variables.go.
type Config struct {
	// AACConfig holds the fmtp attribute of an AAC stream, as found in the
	// session description, for example:
	//  a=fmtp:96 mode=AAC-hbr; sizelength=13; indexlength=3; indexdeltalength=3; config=1210
	// It provides both the AU-header field widths and the AudioSpecificConfig
	// used for ADTS headers. It is only used when InputCodec is aac.
	AACConfig string

	// Channel is the RTP channel of interleaved input, i.e. the first value of
	// the interleaved parameter of the RTSP Transport header. It is used by
	// file and manual input.
	Channel uint8

	// Input defines the input data source.
	//
	// Valid values are defined by enums:
	// InputUDP:
	//		Receive RTP datagrams on RTPAddress.
	// InputFile:
	//		Read RTSP interleaved RTP from a capture file.
	// 		Location must be specified in InputPath field.
	// InputManual:
	//		Interleaved RTP is written to the receiver by the caller.
	Input uint8

	// InputCodec defines the codec carried by the RTP stream, and therefore the
	// depacketizer used in the pipeline. This defaults to H264.
	InputCodec string

	// InputPath defines the input file location for File Input. This must be
	// defined if File input is to be used.
	InputPath string

	// Logger holds an implementation of the Logger interface.
	// This must be set for the receiver to work correctly.
	Logger logging.Logger

	// LogLevel is the logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8

	Loop        bool // If true will restart reading of input after an io.EOF.
	MaxFileSize uint // Maximum size in bytes that a file will be written when File output is to be used. A value of 0 means unlimited.

	// OutputPath defines the output file name prefix for file outputs. A time
	// stamp is appended to each created file.
	OutputPath string

	// Outputs define the outputs we wish to output data too.
	//
	// Valid outputs are defined by enums:
	// OutputFile:
	// 		Elementary stream (Annex B for H.264, ADTS for AAC) written to files
	//		prefixed by OutputPath, limited in size by MaxFileSize.
	// OutputFiles:
	// 		As OutputFile but with a new file for every write.
	// OutputRecords:
	// 		Depacketized frames as length prefixed records, without any codec
	//		specific framing.
	// OutputMTS:
	// 		MPEG transport stream with presentation timestamps taken from the
	//		RTP timestamps, written to a file prefixed by OutputPath.
	Outputs []uint8

	PoolCapacity         uint   // The number of bytes the pool buffer will occupy.
	PoolStartElementSize uint   // The starting element size of the pool buffer from which element size will increase to accomodate frames.
	PoolWriteTimeout     uint   // The pool buffer write timeout in seconds.
	RTPAddress           string // RTPAddress defines the local address RTP is received on for UDP input.

	Suppress bool // Holds logger suppression state.
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}

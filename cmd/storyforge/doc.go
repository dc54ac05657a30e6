// Command storyforge produces narrated picture stories: it generates scene
// images and voice clips, previews the timed sequence, records background
// music and packs everything into a zip bundle.
package main
